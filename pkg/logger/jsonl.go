package logger

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"posebridge/pkg/protocol"
	"posebridge/pkg/transport"
)

// JSONLWriter records samples and receiver state changes as JSON lines.
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

type sampleRecord struct {
	TS   string  `json:"ts"`
	Seq  uint64  `json:"seq"`
	Peer string  `json:"peer,omitempty"`
	W    float32 `json:"w"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Z    float32 `json:"z"`
	PX   float32 `json:"px"`
	PY   float32 `json:"py"`
	PZ   float32 `json:"pz"`
}

type stateRecord struct {
	TS    string `json:"ts"`
	State string `json:"state"`
	Addr  string `json:"addr,omitempty"`
	Peer  string `json:"peer,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{
		enc: enc,
		now: time.Now,
	}
}

func (j *JSONLWriter) Consume(ctx context.Context, in <-chan protocol.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-in:
			if !ok {
				return
			}
			j.WriteSample(sample)
		}
	}
}

// WriteSample drops samples whose floats JSON cannot represent.
func (j *JSONLWriter) WriteSample(sample protocol.Sample) {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = j.now()
	}
	p := sample.Pose
	j.encode(sampleRecord{
		TS:   formatTS(ts),
		Seq:  sample.Seq,
		Peer: sample.Peer,
		W:    p.Orientation.W,
		X:    p.Orientation.X,
		Y:    p.Orientation.Y,
		Z:    p.Orientation.Z,
		PX:   p.Position.X,
		PY:   p.Position.Y,
		PZ:   p.Position.Z,
	})
}

func (j *JSONLWriter) WriteState(st transport.State) {
	rec := stateRecord{
		TS:    formatTS(j.now()),
		State: st.Kind.String(),
		Addr:  st.Addr,
		Peer:  st.Peer,
	}
	if st.Err != nil {
		rec.Error = st.Err.Error()
	}
	j.encode(rec)
}

func (j *JSONLWriter) encode(v any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(v)
}

func formatTS(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

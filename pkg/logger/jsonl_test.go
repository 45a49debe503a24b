package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posebridge/pkg/logger"
	"posebridge/pkg/protocol"
	"posebridge/pkg/transport"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestJSONLWriterConsume(t *testing.T) {
	var buf bytes.Buffer
	writer := logger.NewJSONLWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan protocol.Sample, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Consume(ctx, ch)
	}()

	ts := time.Date(2026, 2, 5, 16, 0, 0, 0, time.UTC)
	ch <- protocol.Sample{
		Seq:       7,
		Timestamp: ts,
		Peer:      "127.0.0.1:5000",
		Pose: protocol.Pose{
			Orientation: protocol.Quaternion{W: 1},
			Position:    protocol.Vector3{X: 2.5, Y: -1},
		},
	}
	close(ch)
	wg.Wait()

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "2026-02-05T16:00:00Z", rec["ts"])
	assert.Equal(t, float64(7), rec["seq"])
	assert.Equal(t, "127.0.0.1:5000", rec["peer"])
	assert.Equal(t, float64(1), rec["w"])
	assert.Equal(t, float64(2.5), rec["px"])
	assert.Equal(t, float64(-1), rec["py"])
	assert.Equal(t, float64(0), rec["pz"])
}

func TestJSONLWriterState(t *testing.T) {
	var buf bytes.Buffer
	writer := logger.NewJSONLWriter(&buf)

	writer.WriteState(transport.State{Kind: transport.StateListening, Addr: "0.0.0.0:10000"})
	writer.WriteState(transport.State{Kind: transport.StateFailed, Err: errors.New("boom")})

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "listening", recs[0]["state"])
	assert.Equal(t, "0.0.0.0:10000", recs[0]["addr"])
	assert.NotContains(t, recs[0], "error")

	assert.Equal(t, "failed", recs[1]["state"])
	assert.Equal(t, "boom", recs[1]["error"])
	_, err := time.Parse(time.RFC3339Nano, recs[1]["ts"].(string))
	assert.NoError(t, err)
}

package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"posebridge/pkg/engine"
	"posebridge/pkg/protocol"
	"posebridge/pkg/render"
	"posebridge/pkg/transport"
)

const (
	markerTypeCube  = 1
	markerActionAdd = 0

	logLevelInfo    = 2
	logLevelWarning = 3
	logLevelError   = 4
)

type PoseMessage struct {
	Timestamp   FrameTime   `json:"timestamp"`
	Seq         uint64      `json:"seq"`
	Peer        string      `json:"peer,omitempty"`
	Orientation Quaternion4 `json:"orientation"`
	Position    Vector3     `json:"position"`
}

type MarkerMessage struct {
	Header MarkerHeader `json:"header"`
	NS     string       `json:"ns"`
	ID     int32        `json:"id"`
	Type   int32        `json:"type"`
	Action int32        `json:"action"`
	Pose   MarkerPose   `json:"pose"`
	Scale  Vector3      `json:"scale"`
	Color  ColorRGBA    `json:"color"`
}

type MarkerHeader struct {
	FrameID string    `json:"frame_id"`
	Stamp   FrameTime `json:"stamp"`
}

type MarkerPose struct {
	Position    Vector3     `json:"position"`
	Orientation Quaternion4 `json:"orientation"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion4 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type ColorRGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type FrameTransformMessage struct {
	Timestamp     FrameTime   `json:"timestamp"`
	ParentFrameID string      `json:"parent_frame_id"`
	ChildFrameID  string      `json:"child_frame_id"`
	Translation   Vector3     `json:"translation"`
	Rotation      Quaternion4 `json:"rotation"`
}

type FrameTransformsMessage struct {
	Transforms []FrameTransformMessage `json:"transforms"`
}

type FrameTime struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

type LogMessage struct {
	Timestamp FrameTime `json:"timestamp"`
	Level     uint8     `json:"level"`
	Message   string    `json:"message"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	Line      uint32    `json:"line"`
}

// Server bridges decoded poses to Foxglove Studio over websocket.
type Server struct {
	cfg       Config
	hub       *engine.Hub
	sessionID string

	mu         sync.RWMutex
	clients    map[*client]struct{}
	lastStatus *StatusMsg
}

type outbound struct {
	kind int
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan outbound
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

func NewServer(cfg Config, hub *engine.Hub) *Server {
	cfg.normalize()
	return &Server{
		cfg:       cfg,
		hub:       hub,
		sessionID: uuid.NewString(),
		clients:   make(map[*client]struct{}),
	}
}

func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	httpServer := &http.Server{
		Addr:              s.cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		c.close()
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		c.close()
		return
	}
	s.addClient(c)

	s.mu.RLock()
	last := s.lastStatus
	s.mu.RUnlock()
	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			c.trySend(outbound{kind: websocket.TextMessage, data: data})
		}
	}

	go c.writeLoop()
	c.readLoop(s.supportedChannels())

	c.close()
	s.removeClient(c)
}

func (s *Server) channels() []ChannelConfig {
	return []ChannelConfig{s.cfg.Pose, s.cfg.Marker, s.cfg.Transform, s.cfg.Log}
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	out := make(map[uint64]struct{}, 4)
	for _, ch := range s.channels() {
		out[ch.ID] = struct{}{}
	}
	return out
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          s.sessionID,
	}
}

func (s *Server) advertise() AdvertiseMsg {
	cfgs := s.channels()
	channels := make([]Channel, 0, len(cfgs))
	for _, ch := range cfgs {
		channels = append(channels, ch.channel())
	}
	return AdvertiseMsg{Op: OpAdvertise, Channels: channels}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan protocol.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub:
			if !ok {
				return
			}
			s.broadcastSample(sample)
		}
	}
}

func (s *Server) broadcastSample(sample protocol.Sample) {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tf := render.Apply(sample.Pose, s.cfg.Scale)

	s.publishJSONToChannel(s.cfg.Pose.ID, ts, poseMessage(sample, ts))
	s.publishJSONToChannel(s.cfg.Marker.ID, ts, s.marker(tf, ts))
	s.publishJSONToChannel(s.cfg.Transform.ID, ts, s.frameTransforms(tf, ts))
}

// LogState reports a receiver transition on the log channel and as a
// status message to every connected client.
func (s *Server) LogState(st transport.State) {
	ts := time.Now()
	level, status := uint8(logLevelInfo), StatusInfo
	switch st.Kind {
	case transport.StateDisconnected:
		level, status = logLevelWarning, StatusWarning
	case transport.StateFailed:
		level, status = logLevelError, StatusError
	}

	s.publishJSONToChannel(s.cfg.Log.ID, ts, LogMessage{
		Timestamp: frameTime(ts),
		Level:     level,
		Message:   "receiver " + st.String(),
		Name:      s.cfg.Name,
	})

	msg := &StatusMsg{Op: OpStatus, Level: status, Message: "receiver " + st.String()}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()
	for _, c := range s.snapshotClients() {
		c.trySend(outbound{kind: websocket.TextMessage, data: data})
	}
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			frame := EncodeMessageData(subID, logTime, payload)
			c.trySend(outbound{kind: websocket.BinaryMessage, data: frame})
		}
	}
}

func poseMessage(sample protocol.Sample, ts time.Time) PoseMessage {
	q, p := sample.Pose.Orientation, sample.Pose.Position
	return PoseMessage{
		Timestamp: frameTime(ts),
		Seq:       sample.Seq,
		Peer:      sample.Peer,
		Orientation: Quaternion4{
			X: float64(q.X),
			Y: float64(q.Y),
			Z: float64(q.Z),
			W: float64(q.W),
		},
		Position: Vector3{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)},
	}
}

func (s *Server) marker(tf render.Transform, ts time.Time) MarkerMessage {
	size := s.cfg.MarkerSize
	return MarkerMessage{
		Header: MarkerHeader{FrameID: s.cfg.ParentFrameID, Stamp: frameTime(ts)},
		NS:     "posebridge",
		ID:     1,
		Type:   markerTypeCube,
		Action: markerActionAdd,
		Pose: MarkerPose{
			Position:    vector(tf),
			Orientation: rotation(tf),
		},
		Scale: Vector3{X: size, Y: size, Z: size},
		Color: ColorRGBA{R: 1, G: 1, B: 1, A: 1},
	}
}

func (s *Server) frameTransforms(tf render.Transform, ts time.Time) FrameTransformsMessage {
	return FrameTransformsMessage{Transforms: []FrameTransformMessage{{
		Timestamp:     frameTime(ts),
		ParentFrameID: s.cfg.ParentFrameID,
		ChildFrameID:  s.cfg.FrameID,
		Translation:   vector(tf),
		Rotation:      rotation(tf),
	}}}
}

func vector(tf render.Transform) Vector3 {
	return Vector3{X: tf.Position.X, Y: tf.Position.Y, Z: tf.Position.Z}
}

func rotation(tf render.Transform) Quaternion4 {
	q := tf.Rotation
	return Quaternion4{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

func frameTime(ts time.Time) FrameTime {
	return FrameTime{Sec: uint32(ts.Unix()), Nsec: uint32(ts.Nanosecond())}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan outbound, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops msg if the client is slow or already closed.
func (c *client) trySend(msg outbound) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

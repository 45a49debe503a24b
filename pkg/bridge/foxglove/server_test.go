package foxglove

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posebridge/pkg/protocol"
	"posebridge/pkg/render"
)

var testPose = protocol.Pose{
	Orientation: protocol.Quaternion{W: 0.5, X: 0.5, Y: -0.5, Z: 0.5},
	Position:    protocol.Vector3{X: 2.5, Y: -1, Z: 0},
}

func TestMarkerUsesScaledPose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scale = render.Scale{X: 2, Y: 3, Z: 4}
	srv := NewServer(cfg, nil)
	ts := time.Unix(10, 123)

	marker := srv.marker(render.Apply(testPose, srv.cfg.Scale), ts)
	assert.Equal(t, srv.cfg.ParentFrameID, marker.Header.FrameID)
	assert.Equal(t, FrameTime{Sec: 10, Nsec: 123}, marker.Header.Stamp)
	assert.Equal(t, int32(markerTypeCube), marker.Type)
	assert.Equal(t, int32(markerActionAdd), marker.Action)
	assert.Equal(t, Vector3{X: 5, Y: -3, Z: 0}, marker.Pose.Position)
	assert.Equal(t, Quaternion4{X: 0.5, Y: -0.5, Z: 0.5, W: 0.5}, marker.Pose.Orientation)
	assert.Equal(t, Vector3{X: 0.3, Y: 0.3, Z: 0.3}, marker.Scale)
}

func TestFrameTransformsParentChild(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	msg := srv.frameTransforms(render.Apply(testPose, render.UnitScale()), time.Unix(1, 2))

	require.Len(t, msg.Transforms, 1)
	tf := msg.Transforms[0]
	assert.Equal(t, "world", tf.ParentFrameID)
	assert.Equal(t, "tracked", tf.ChildFrameID)
	assert.Equal(t, Vector3{X: 2.5, Y: -1, Z: 0}, tf.Translation)
	assert.Equal(t, 0.5, tf.Rotation.W)
}

func TestPoseMessageKeepsRawUnits(t *testing.T) {
	msg := poseMessage(protocol.Sample{Seq: 9, Peer: "peer", Pose: testPose}, time.Unix(5, 0))
	assert.Equal(t, uint64(9), msg.Seq)
	assert.Equal(t, "peer", msg.Peer)
	assert.Equal(t, Vector3{X: 2.5, Y: -1, Z: 0}, msg.Position)
	assert.Equal(t, FrameTime{Sec: 5}, msg.Timestamp)
}

func TestNormalizeFillsDefaultsAndDedupesChannelIDs(t *testing.T) {
	cfg := Config{
		Pose:   ChannelConfig{ID: 7},
		Marker: ChannelConfig{ID: 7},
		Log:    ChannelConfig{ID: 2, Topic: "/custom/log"},
	}
	cfg.normalize()

	def := DefaultConfig()
	assert.Equal(t, def.WSAddr, cfg.WSAddr)
	assert.Equal(t, render.UnitScale(), cfg.Scale)
	assert.Equal(t, "/custom/log", cfg.Log.Topic)
	assert.Equal(t, def.Transform.SchemaName, cfg.Transform.SchemaName)

	seen := map[uint64]bool{}
	for _, ch := range []ChannelConfig{cfg.Pose, cfg.Marker, cfg.Transform, cfg.Log} {
		assert.False(t, seen[ch.ID], "duplicate channel id %d", ch.ID)
		seen[ch.ID] = true
	}
	assert.Equal(t, uint64(7), cfg.Pose.ID)
}

func TestMessageDataRoundTrip(t *testing.T) {
	frame := EncodeMessageData(42, 1234567890, []byte(`{"a":1}`))
	sub, logTime, payload, ok := DecodeMessageData(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(42), sub)
	assert.Equal(t, uint64(1234567890), logTime)
	assert.Equal(t, `{"a":1}`, string(payload))

	_, _, _, ok = DecodeMessageData([]byte{0x02, 0, 0})
	assert.False(t, ok)
}

package protocol_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posebridge/pkg/protocol"
)

func TestDecodeFrameFieldOrder(t *testing.T) {
	want := []float32{1, 0.25, -0.5, 0.75, 2.5, -1, 0}
	frame := make([]byte, 0, protocol.FrameSize)
	for _, v := range want {
		frame = binary.LittleEndian.AppendUint32(frame, math.Float32bits(v))
	}

	pose, err := protocol.DecodeFrame(frame)
	require.NoError(t, err)

	got := []float32{
		pose.Orientation.W, pose.Orientation.X, pose.Orientation.Y, pose.Orientation.Z,
		pose.Position.X, pose.Position.Y, pose.Position.Z,
	}
	assert.Equal(t, want, got)
}

func TestDecodeFrameIgnoresAdjacentBytes(t *testing.T) {
	pose := protocol.Pose{
		Orientation: protocol.Quaternion{W: 1},
		Position:    protocol.Vector3{X: 3, Y: 4, Z: 5},
	}
	buf := append([]byte{0xde, 0xad}, protocol.EncodeFrame(pose)...)
	buf = append(buf, 0xbe, 0xef)

	got, err := protocol.DecodeFrame(buf[2 : 2+protocol.FrameSize])
	require.NoError(t, err)
	assert.Equal(t, pose, got)
}

func TestDecodeFrameRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, protocol.FrameSize - 1, protocol.FrameSize + 1} {
		_, err := protocol.DecodeFrame(make([]byte, n))
		assert.ErrorIs(t, err, protocol.ErrFrameSize, "length %d", n)
	}
}

func TestFrameRoundTripPreservesBits(t *testing.T) {
	nan := math.Float32frombits(0x7fc00001)
	pose := protocol.Pose{
		Orientation: protocol.Quaternion{W: nan, X: float32(math.Inf(1)), Y: float32(math.Inf(-1)), Z: -0},
		Position:    protocol.Vector3{X: math.MaxFloat32, Y: math.SmallestNonzeroFloat32, Z: -123.456},
	}

	frame := protocol.EncodeFrame(pose)
	require.Len(t, frame, protocol.FrameSize)

	got, err := protocol.DecodeFrame(frame)
	require.NoError(t, err)

	pairs := [][2]float32{
		{pose.Orientation.W, got.Orientation.W},
		{pose.Orientation.X, got.Orientation.X},
		{pose.Orientation.Y, got.Orientation.Y},
		{pose.Orientation.Z, got.Orientation.Z},
		{pose.Position.X, got.Position.X},
		{pose.Position.Y, got.Position.Y},
		{pose.Position.Z, got.Position.Z},
	}
	for i, p := range pairs {
		assert.Equal(t, math.Float32bits(p[0]), math.Float32bits(p[1]), "field %d", i)
	}
}

func TestAppendFrameKeepsPrefix(t *testing.T) {
	buf := protocol.AppendFrame([]byte{0x01}, protocol.Pose{})
	require.Len(t, buf, 1+protocol.FrameSize)
	assert.Equal(t, byte(0x01), buf[0])
}

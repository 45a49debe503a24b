package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// FrameSize is the length of one pose record on the wire: seven
// little-endian float32 values w, x, y, z, pos_x, pos_y, pos_z.
const FrameSize = 7 * 4

var ErrFrameSize = errors.New("invalid frame size")

// DecodeFrame decodes exactly FrameSize bytes into a Pose.
func DecodeFrame(frame []byte) (Pose, error) {
	if len(frame) != FrameSize {
		return Pose{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), FrameSize)
	}
	return Pose{
		Orientation: Quaternion{
			W: float32At(frame, 0),
			X: float32At(frame, 4),
			Y: float32At(frame, 8),
			Z: float32At(frame, 12),
		},
		Position: Vector3{
			X: float32At(frame, 16),
			Y: float32At(frame, 20),
			Z: float32At(frame, 24),
		},
	}, nil
}

// EncodeFrame returns the wire form of pose.
func EncodeFrame(pose Pose) []byte {
	return AppendFrame(make([]byte, 0, FrameSize), pose)
}

// AppendFrame appends the wire form of pose to dst.
func AppendFrame(dst []byte, pose Pose) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Orientation.W))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Orientation.X))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Orientation.Y))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Orientation.Z))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Position.X))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Position.Y))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(pose.Position.Z))
	return dst
}

func float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

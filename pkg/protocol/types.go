package protocol

import "time"

// Quaternion mirrors the sender layout: struct { float w, x, y, z; }.
type Quaternion struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Vector3 is a raw position in sender units.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Pose is one decoded frame. The zero value is the default published
// before any frame arrives.
type Pose struct {
	Orientation Quaternion `json:"orientation"`
	Position    Vector3    `json:"position"`
}

// Sample is a decoded pose flowing through the pipeline.
type Sample struct {
	Seq       uint64
	Timestamp time.Time
	Peer      string
	Pose      Pose
}

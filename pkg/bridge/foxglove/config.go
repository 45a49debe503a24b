package foxglove

import "posebridge/pkg/render"

const PoseSchema = `{
  "type": "object",
  "properties": {
    "timestamp": {
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    },
    "seq": { "type": "integer" },
    "peer": { "type": "string" },
    "orientation": {
      "type": "object",
      "properties": {
        "w": { "type": "number" }, "x": { "type": "number" },
        "y": { "type": "number" }, "z": { "type": "number" }
      }
    },
    "position": {
      "type": "object",
      "properties": {
        "x": { "type": "number" }, "y": { "type": "number" }, "z": { "type": "number" }
      }
    }
  },
  "required": ["timestamp", "orientation", "position"]
}`

// ChannelConfig describes one advertised Foxglove channel.
type ChannelConfig struct {
	ID             uint64
	Topic          string
	Encoding       string
	SchemaName     string
	SchemaEncoding string
	Schema         string
}

type Config struct {
	WSAddr        string
	Name          string
	ParentFrameID string
	FrameID       string
	MarkerSize    float64
	Scale         render.Scale
	SendBuf       int

	Pose      ChannelConfig
	Marker    ChannelConfig
	Transform ChannelConfig
	Log       ChannelConfig
}

func DefaultConfig() Config {
	return Config{
		WSAddr:        "127.0.0.1:8765",
		Name:          "posebridge",
		ParentFrameID: "world",
		FrameID:       "tracked",
		MarkerSize:    0.3,
		Scale:         render.UnitScale(),
		SendBuf:       256,
		Pose: ChannelConfig{
			ID:             1,
			Topic:          "/posebridge/pose",
			Encoding:       "json",
			SchemaName:     "posebridge.Pose",
			SchemaEncoding: "jsonschema",
			Schema:         PoseSchema,
		},
		Marker: ChannelConfig{
			ID:             2,
			Topic:          "/visualization_marker",
			Encoding:       "json",
			SchemaName:     "visualization_msgs/Marker",
			SchemaEncoding: "jsonschema",
			Schema:         MarkerSchema,
		},
		Transform: ChannelConfig{
			ID:             3,
			Topic:          "/tf",
			Encoding:       "json",
			SchemaName:     "foxglove.FrameTransforms",
			SchemaEncoding: "jsonschema",
			Schema:         FrameTransformsSchema,
		},
		Log: ChannelConfig{
			ID:             4,
			Topic:          "/posebridge/log",
			Encoding:       "json",
			SchemaName:     "foxglove.Log",
			SchemaEncoding: "jsonschema",
			Schema:         LogSchema,
		},
	}
}

// normalize fills empty fields from defaults and makes channel IDs
// unique.
func (cfg *Config) normalize() {
	def := DefaultConfig()
	if cfg.WSAddr == "" {
		cfg.WSAddr = def.WSAddr
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ParentFrameID == "" {
		cfg.ParentFrameID = def.ParentFrameID
	}
	if cfg.FrameID == "" {
		cfg.FrameID = def.FrameID
	}
	if cfg.MarkerSize <= 0 {
		cfg.MarkerSize = def.MarkerSize
	}
	if cfg.Scale == (render.Scale{}) {
		cfg.Scale = def.Scale
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = def.SendBuf
	}

	channels := []*ChannelConfig{&cfg.Pose, &cfg.Marker, &cfg.Transform, &cfg.Log}
	defaults := []ChannelConfig{def.Pose, def.Marker, def.Transform, def.Log}
	used := make(map[uint64]struct{}, len(channels))
	var maxID uint64
	for i, ch := range channels {
		ch.fill(defaults[i])
		maxID = max(maxID, ch.ID)
	}
	for _, ch := range channels {
		if _, dup := used[ch.ID]; dup {
			maxID++
			ch.ID = maxID
		}
		used[ch.ID] = struct{}{}
	}
}

func (ch *ChannelConfig) fill(def ChannelConfig) {
	if ch.ID == 0 {
		ch.ID = def.ID
	}
	if ch.Topic == "" {
		ch.Topic = def.Topic
	}
	if ch.Encoding == "" {
		ch.Encoding = def.Encoding
	}
	if ch.SchemaName == "" {
		ch.SchemaName = def.SchemaName
	}
	if ch.SchemaEncoding == "" {
		ch.SchemaEncoding = def.SchemaEncoding
	}
	if ch.Schema == "" {
		ch.Schema = def.Schema
	}
}

func (ch ChannelConfig) channel() Channel {
	return Channel{
		ID:             ch.ID,
		Topic:          ch.Topic,
		Encoding:       ch.Encoding,
		SchemaName:     ch.SchemaName,
		SchemaEncoding: ch.SchemaEncoding,
		Schema:         ch.Schema,
	}
}

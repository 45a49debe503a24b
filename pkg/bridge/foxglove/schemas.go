package foxglove

const vector3Schema = `{
      "type": "object",
      "properties": {
        "x": { "type": "number" }, "y": { "type": "number" }, "z": { "type": "number" }
      }
    }`

const quaternionSchema = `{
      "type": "object",
      "properties": {
        "x": { "type": "number" }, "y": { "type": "number" },
        "z": { "type": "number" }, "w": { "type": "number" }
      }
    }`

const timeSchema = `{
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    }`

const FrameTransformsSchema = `{
  "type": "object",
  "properties": {
    "transforms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timestamp": ` + timeSchema + `,
          "parent_frame_id": { "type": "string" },
          "child_frame_id": { "type": "string" },
          "translation": ` + vector3Schema + `,
          "rotation": ` + quaternionSchema + `
        }
      }
    }
  }
}`

const MarkerSchema = `{
  "type": "object",
  "properties": {
    "header": {
      "type": "object",
      "properties": {
        "frame_id": { "type": "string" },
        "stamp": ` + timeSchema + `
      }
    },
    "ns": { "type": "string" },
    "id": { "type": "integer" },
    "type": { "type": "integer" },
    "action": { "type": "integer" },
    "pose": {
      "type": "object",
      "properties": {
        "position": ` + vector3Schema + `,
        "orientation": ` + quaternionSchema + `
      }
    },
    "scale": ` + vector3Schema + `,
    "color": {
      "type": "object",
      "properties": {
        "r": { "type": "number" }, "g": { "type": "number" },
        "b": { "type": "number" }, "a": { "type": "number" }
      }
    }
  }
}`

const LogSchema = `{
  "type": "object",
  "properties": {
    "timestamp": ` + timeSchema + `,
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

package foxglove

import "encoding/binary"

// Subprotocol is the websocket subprotocol spoken by Foxglove Studio.
const Subprotocol = "foxglove.websocket.v1"

const (
	OpServerInfo  = "serverInfo"
	OpStatus      = "status"
	OpAdvertise   = "advertise"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	BinaryOpMessageData = 0x01
)

// Status levels for OpStatus.
const (
	StatusInfo    = 0
	StatusWarning = 1
	StatusError   = 2
)

type ServerInfoMsg struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
}

type StatusMsg struct {
	Op      string `json:"op"`
	Level   int    `json:"level"`
	Message string `json:"message"`
}

type Channel struct {
	ID             uint64 `json:"id"`
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
	Schema         string `json:"schema,omitempty"`
}

type AdvertiseMsg struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

type Subscription struct {
	ID        uint32 `json:"id"`
	ChannelID uint64 `json:"channelId"`
}

type SubscribeMsg struct {
	Op            string         `json:"op"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type UnsubscribeMsg struct {
	Op              string   `json:"op"`
	SubscriptionIDs []uint32 `json:"subscriptionIds"`
}

// messageDataHeader is opcode(1) + subscription id(4) + log time(8).
const messageDataHeader = 13

// EncodeMessageData builds a binary messageData frame.
func EncodeMessageData(subscriptionID uint32, logTime uint64, payload []byte) []byte {
	out := make([]byte, 0, messageDataHeader+len(payload))
	out = append(out, BinaryOpMessageData)
	out = binary.LittleEndian.AppendUint32(out, subscriptionID)
	out = binary.LittleEndian.AppendUint64(out, logTime)
	return append(out, payload...)
}

// DecodeMessageData splits a messageData frame. ok is false for any other
// binary opcode or a short frame.
func DecodeMessageData(frame []byte) (subscriptionID uint32, logTime uint64, payload []byte, ok bool) {
	if len(frame) < messageDataHeader || frame[0] != BinaryOpMessageData {
		return 0, 0, nil, false
	}
	return binary.LittleEndian.Uint32(frame[1:5]), binary.LittleEndian.Uint64(frame[5:13]), frame[messageDataHeader:], true
}

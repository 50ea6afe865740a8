package queue

import "encoding/json"

// MessageVersion is the current notification payload version.
const MessageVersion = 1

// Message announces that a job's structured content is ready to fetch. It never
// carries document bytes or extracted text.
type Message struct {
	JobID     string `json:"jobId"`
	OwnerKey  string `json:"ownerKey"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
	ReadyAt   string `json:"readyAt"`
	Version   int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

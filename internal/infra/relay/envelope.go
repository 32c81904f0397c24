package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Envelope is the callback body: the provider's status and headers with the
// raw response base64 encoded.
type Envelope struct {
	Status          int                 `json:"status"`
	SourceMessageID string              `json:"sourceMessageId"`
	Header          map[string][]string `json:"header,omitempty"`
	Body            string              `json:"body"`
}

func NewEnvelope(messageID string, status int, body []byte) Envelope {
	return Envelope{
		Status:          status,
		SourceMessageID: messageID,
		Header:          map[string][]string{"Content-Type": {"application/json"}},
		Body:            base64.StdEncoding.EncodeToString(body),
	}
}

func DecodeEnvelope(raw []byte) (Envelope, []byte, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.SourceMessageID == "" {
		return Envelope{}, nil, fmt.Errorf("decode envelope: sourceMessageId is required")
	}
	body, err := base64.StdEncoding.DecodeString(env.Body)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope body: %w", err)
	}
	return env, body, nil
}

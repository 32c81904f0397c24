package entity

// GenerationJob is the relay request payload published for one message id.
type GenerationJob struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Prompt    string `json:"prompt"`
}

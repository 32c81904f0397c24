package entity

type PendingStatus string

const (
	PendingWaiting    PendingStatus = "waiting"
	PendingProcessing PendingStatus = "processing"
	PendingDone       PendingStatus = "done"
	PendingFailed     PendingStatus = "failed"
)

// PendingRequest is the in-flight state of one relay message. It lives only in
// the KV store; Prompt is set while waiting/processing, URLs once done and
// Reason once failed.
type PendingRequest struct {
	Status PendingStatus `json:"status"`
	UserID string        `json:"userId"`
	Prompt string        `json:"prompt,omitempty"`
	URLs   []string      `json:"urls,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

func (p PendingRequest) Terminal() bool {
	return p.Status == PendingDone || p.Status == PendingFailed
}

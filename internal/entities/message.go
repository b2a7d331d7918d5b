package entities

// Message directions as they appear on the wire.
const (
	DirectionOutgoing = "me"
	DirectionIncoming = "them"
	DirectionSystem   = "system"
)

// Delivery statuses. "failed" is ours: the upstream never reports it, we set
// it when a send request errors so the operator can see the message is stuck.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// ChatMessage is one entry in a conversation transcript. Outgoing messages
// start with a temporary local ID ("temp-<uuid>") and status "sent"; the ID
// is rewritten once the server confirms the send.
type ChatMessage struct {
	ID        string  `json:"id,omitempty"`
	Text      string  `json:"text"`
	Direction string  `json:"from"`
	Timestamp float64 `json:"timestamp,omitempty"` // unix seconds
	Status    string  `json:"status,omitempty"`
}

package session

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Event is the parsed form of one stream payload. ParseEvent produces
// exactly one of the three concrete types below, so every payload is
// handled through a single typed dispatch instead of ad-hoc map digging.
type Event interface {
	eventType() string
}

// InboundMessage is a text message from the customer.
type InboundMessage struct {
	From      string
	Text      string
	Timestamp float64
}

// StatusUpdate upgrades the delivery status of an already-sent message,
// keyed by its server-assigned id.
type StatusUpdate struct {
	ID        string
	Status    string
	Timestamp float64
}

// Unrecognized carries any payload that matches neither shape. It is kept
// in the transcript as a system line so events are never silently lost.
type Unrecognized struct {
	Raw json.RawMessage
}

func (InboundMessage) eventType() string { return "message" }
func (StatusUpdate) eventType() string   { return "status" }
func (Unrecognized) eventType() string   { return "unrecognized" }

// unixSeconds tolerates the webhook's habit of sending epoch timestamps as
// strings, numbers or nothing at all.
type unixSeconds float64

func (t *unixSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// The timestamp is cosmetic; a bad one must not sink the event.
		*t = 0
		return nil
	}
	*t = unixSeconds(f)
	return nil
}

type wireEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From      string      `json:"from"`
					Timestamp unixSeconds `json:"timestamp"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []struct {
					ID        string      `json:"id"`
					Status    string      `json:"status"`
					Timestamp unixSeconds `json:"timestamp"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseEvent classifies one stream payload. It never fails: anything that
// is not a message or a status envelope comes back as Unrecognized.
func ParseEvent(data []byte) Event {
	raw := func() Unrecognized {
		return Unrecognized{Raw: append(json.RawMessage(nil), data...)}
	}

	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return raw()
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return raw()
	}

	value := env.Entry[0].Changes[0].Value
	if len(value.Messages) > 0 {
		msg := value.Messages[0]
		text := msg.Text.Body
		if text == "" {
			text = "[no text]"
		}
		return InboundMessage{From: msg.From, Text: text, Timestamp: float64(msg.Timestamp)}
	}
	if len(value.Statuses) > 0 {
		st := value.Statuses[0]
		return StatusUpdate{ID: st.ID, Status: st.Status, Timestamp: float64(st.Timestamp)}
	}
	return raw()
}

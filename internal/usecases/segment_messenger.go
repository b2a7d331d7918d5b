package usecases

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/time/rate"

	"insightdash/internal/entities"
)

// Sender is the slice of the gateway client the segment messenger needs.
type Sender interface {
	Send(ctx context.Context, sc entities.SessionContext, toNumber, message string) (string, error)
}

// SendResult is the outcome of one per-customer send in a segment blast.
type SendResult struct {
	Phone string `json:"phone"`
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// SegmentMessenger sends a filled template message to every customer in a
// cohort, throttled so a large segment does not hammer the upstream.
type SegmentMessenger struct {
	sender  Sender
	limiter *rate.Limiter
}

func NewSegmentMessenger(sender Sender, limiter *rate.Limiter) *SegmentMessenger {
	return &SegmentMessenger{sender: sender, limiter: limiter}
}

// SendToSegment fills the template per customer and sends it. varFields name
// the row fields substituted into {{1}}..{{n}} in order. Customers without a
// phone number are skipped with an error result; one failed send never
// aborts the rest of the segment.
func (m *SegmentMessenger) SendToSegment(ctx context.Context, sc entities.SessionContext, customers []entities.Row, template string, varFields []string) []SendResult {
	results := make([]SendResult, 0, len(customers))
	for _, row := range customers {
		phone := FormatKuwaitNumber(row.String("phone", "phone_number", "mobile"))
		if phone == "" {
			results = append(results, SendResult{Error: "missing phone number"})
			continue
		}

		vars := make([]string, 0, len(varFields))
		for _, field := range varFields {
			vars = append(vars, row.String(field))
		}
		text := FillTemplate(template, vars)

		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				results = append(results, SendResult{Phone: phone, Error: err.Error()})
				continue
			}
		}

		if _, err := m.sender.Send(ctx, sc, phone, text); err != nil {
			log.Printf("[SEGMENT] send to %s failed: %v", phone, err)
			results = append(results, SendResult{Phone: phone, Error: err.Error()})
			continue
		}
		results = append(results, SendResult{Phone: phone, Sent: true})
	}
	return results
}

// FillTemplate substitutes {{1}}..{{n}} placeholders with the given values.
// Placeholders beyond the value list are left in place.
func FillTemplate(template string, vars []string) string {
	out := template
	for i, v := range vars {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{%d}}", i+1), v)
	}
	return out
}

// FormatKuwaitNumber normalizes a phone number to international Kuwait
// format without the plus sign. Local 8-digit numbers get the 965 prefix;
// longer forms (+965, 00965) reduce to their last 8 digits before the
// prefix goes back on.
func FormatKuwaitNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n := strings.TrimLeft(b.String(), "0")

	switch {
	case len(n) == 11 && strings.HasPrefix(n, "965"):
		return n
	case len(n) == 8:
		return "965" + n
	case len(n) > 8:
		return "965" + n[len(n)-8:]
	default:
		return n
	}
}

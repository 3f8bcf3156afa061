package domain

import (
	"strings"
	"time"
)

// ReasonSeparator joins accumulated flag reasons in exported output.
const ReasonSeparator = "; "

// Transaction is a single card or account transaction plus its evaluation state.
// The input fields are never modified by rules; only IsSuspicious and Flags are.
type Transaction struct {
	UserID       int64     `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
	MerchantName string    `json:"merchantName"`
	Amount       float64   `json:"amount"`

	// Evaluation state, appended to by rules in application order.
	IsSuspicious bool   `json:"isSuspicious"`
	Flags        []Flag `json:"flags,omitempty"`
}

// Flag is one reason a rule attached to a transaction.
type Flag struct {
	Category string `json:"category"` // e.g. "Velocity", "Amount anomaly"
	Detail   string `json:"detail"`
}

// Reason renders the flag as "<Category>: <Detail>".
func (f Flag) Reason() string {
	return f.Category + ": " + f.Detail
}

// Flag marks the transaction suspicious and appends a reason.
func (t *Transaction) Flag(category, detail string) {
	t.IsSuspicious = true
	t.Flags = append(t.Flags, Flag{Category: category, Detail: detail})
}

// Reasons returns the rendered reasons in the order they were added.
func (t *Transaction) Reasons() []string {
	reasons := make([]string, 0, len(t.Flags))
	for _, f := range t.Flags {
		reasons = append(reasons, f.Reason())
	}
	return reasons
}

// FlagReasons returns all reasons joined with ReasonSeparator.
func (t *Transaction) FlagReasons() string {
	return strings.Join(t.Reasons(), ReasonSeparator)
}

// Hour returns the hour of day (0-23) of the transaction timestamp.
func (t *Transaction) Hour() int {
	return t.Timestamp.Hour()
}

// ResetFlags clears the evaluation state.
func (t *Transaction) ResetFlags() {
	t.IsSuspicious = false
	t.Flags = nil
}

// ResetAll clears the evaluation state of every transaction.
func ResetAll(txs []*Transaction) {
	for _, tx := range txs {
		tx.ResetFlags()
	}
}

// Suspicious returns the flagged subset, preserving order.
func Suspicious(txs []*Transaction) []*Transaction {
	out := make([]*Transaction, 0)
	for _, tx := range txs {
		if tx.IsSuspicious {
			out = append(out, tx)
		}
	}
	return out
}

// CheckRequest is the payload for a single-transaction fraud check.
type CheckRequest struct {
	RequestID    string  `json:"requestId,omitempty"`
	UserID       *int64  `json:"userId" validate:"required"`
	Timestamp    string  `json:"timestamp,omitempty"`
	MerchantName string  `json:"merchantName" validate:"required"`
	Amount       float64 `json:"amount"`
}

// User returns the requested user id, or 0 when it was not given.
func (r CheckRequest) User() int64 {
	if r.UserID == nil {
		return 0
	}
	return *r.UserID
}

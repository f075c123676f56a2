package models

import "fmt"

// SendState is the per (customer, month) delivery state.
type SendState string

const (
	StateNotAttempted SendState = "not_attempted"
	StateAttempting   SendState = "attempting"
	StateSent         SendState = "sent"
	StateFailed       SendState = "failed"
)

// ReasonNotSelected marks customers nobody tried to bill this month.
const ReasonNotSelected = "Not selected"

// ReasonInvalidNumber is recorded when a phone cannot be normalized.
const ReasonInvalidNumber = "Invalid number"

var sendTransitions = map[SendState][]SendState{
	StateNotAttempted: {StateAttempting},
	StateAttempting:   {StateSent, StateFailed},
	StateFailed:       {StateAttempting},
}

// ValidateSendTransition reports whether from -> to is allowed. Sent is terminal.
func ValidateSendTransition(from, to SendState) error {
	for _, next := range sendTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("send state %s -> %s not allowed", from, to)
}

// SentRecord is a snapshot taken when the bill went out.
type SentRecord struct {
	CustomerID    string  `json:"customer_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
}

// UnsentRecord is a ledger customer without a SentRecord.
type UnsentRecord struct {
	CustomerID    string  `json:"customer_id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalAmount   float64 `json:"total_amount"`
	Reason        string  `json:"reason"`
}

// SendStatus is the month's partition of ledger customers.
type SendStatus struct {
	Period Period         `json:"period"`
	Sent   []SentRecord   `json:"sent"`
	Unsent []UnsentRecord `json:"unsent"`
}

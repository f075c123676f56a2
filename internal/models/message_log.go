package models

import "time"

// MessageLog is one delivery attempt within a send session.
type MessageLog struct {
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Phone        string    `json:"phone"`
	Channel      string    `json:"channel,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message status types
const (
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
	MessageStatusSkipped = "skipped"
)

// Message channels
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// SessionState is the lifecycle of one send session.
type SessionState string

const (
	SessionRunning   SessionState = "running"
	SessionPaused    SessionState = "paused"
	SessionCancelled SessionState = "cancelled"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// SessionProgress is pushed to the progress channel after every customer.
type SessionProgress struct {
	SessionID string       `json:"session_id"`
	Period    Period       `json:"period"`
	State     SessionState `json:"state"`
	Total     int          `json:"total"`
	Processed int          `json:"processed"`
	Sent      int          `json:"sent"`
	Failed    int          `json:"failed"`
	Current   string       `json:"current,omitempty"`
	Last      *MessageLog  `json:"last,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// StartSessionRequest selects customers to bill. Order is the send order.
type StartSessionRequest struct {
	CustomerIDs []string `json:"customer_ids"`
	Retry       bool     `json:"retry"`
}

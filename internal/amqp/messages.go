package amqp

import (
	"encoding/json"
	"time"
)

// Alert kinds routed through the alerts queue.
const (
	AlertEnvelopeWarn       = "envelope_warn"
	AlertEnvelopeCritical   = "envelope_critical"
	AlertAgreementDeviation = "agreement_deviation"
	AlertGoalCompleted      = "goal_completed"
)

// AlertMessage is a lightweight notification envelope. It carries only the
// identifiers; the worker fetches the full aggregate from the database before
// delivering the alert.
type AlertMessage struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"householdId"`
	Kind        string    `json:"kind"`
	SubjectID   string    `json:"subjectId"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewAlertMessage creates a new alert message for the given subject.
func NewAlertMessage(id, householdID, kind, subjectID string) *AlertMessage {
	return &AlertMessage{
		ID:          id,
		HouseholdID: householdID,
		Kind:        kind,
		SubjectID:   subjectID,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertMessageFromJSON creates a message from JSON bytes
func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

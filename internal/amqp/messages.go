package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"cashflow/internal/core"
)

// TransactionEventMessage announces that a transaction was written. It carries
// only the identity; consumers load the current record from storage.
type TransactionEventMessage struct {
	ID        string       `json:"id"`
	Kind      core.Kind    `json:"kind"`
	Op        core.EventOp `json:"op"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewTransactionEventMessage builds the event for a committed write.
func NewTransactionEventMessage(op core.EventOp, tx core.Transaction) *TransactionEventMessage {
	return &TransactionEventMessage{
		ID:        tx.ID,
		Kind:      tx.Kind,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate rejects messages a consumer could never act on.
func (m *TransactionEventMessage) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: event without transaction id", core.ErrValidation)
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidKind, m.Kind)
	}
	switch m.Op {
	case core.EventCreated, core.EventUpdated:
	default:
		return fmt.Errorf("%w: unknown event op %q", core.ErrValidation, m.Op)
	}
	return nil
}

// TransactionEventMessageFromJSON decodes and validates a message body.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

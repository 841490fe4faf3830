package amqp

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// LedgerEventMessage notifies the export worker that a financial log row
// was appended. The worker re-reads the full state from the database, so
// the message only carries identifiers.
type LedgerEventMessage struct {
	UserID      string               `json:"user_id"`
	RefID       string               `json:"ref_id"`
	Transaction core.TransactionType `json:"transaction_type"`
	Amount      decimal.Decimal      `json:"amount"`
	Timestamp   time.Time            `json:"timestamp"`
}

func NewLedgerEventMessage(userID, refID string, txType core.TransactionType, amount decimal.Decimal) *LedgerEventMessage {
	return &LedgerEventMessage{
		UserID:      userID,
		RefID:       refID,
		Transaction: txType,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

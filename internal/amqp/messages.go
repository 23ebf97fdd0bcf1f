package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationPostedMessage announces a committed ledger operation. It carries
// the id only for lookup; consumers read the row from the database.
type OperationPostedMessage struct {
	OperationID int64     `json:"operation_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewOperationPostedMessage(id int64, opType string, amount int64) *OperationPostedMessage {
	return &OperationPostedMessage{
		OperationID: id,
		Type:        opType,
		Amount:      amount,
		Timestamp:   time.Now(),
	}
}

func (m *OperationPostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OperationPostedMessageFromJSON(data []byte) (*OperationPostedMessage, error) {
	var msg OperationPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OperationID <= 0 {
		return nil, fmt.Errorf("invalid operation id %d", msg.OperationID)
	}
	return &msg, nil
}

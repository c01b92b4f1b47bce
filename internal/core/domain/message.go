package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	AttrOrderID = "orderId"
	AttrUserID  = "userId"
)

// ConfirmationMessage is the body queued for the confirmation dispatcher.
type ConfirmationMessage struct {
	OrderID     string      `json:"orderId"`
	UserID      string      `json:"userId"`
	UserEmail   string      `json:"userEmail"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"totalAmount"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func NewConfirmationMessage(o *Order) ConfirmationMessage {
	return ConfirmationMessage{
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserEmail:   o.UserEmail,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
	}
}

func (m ConfirmationMessage) Attributes() map[string]string {
	return map[string]string{
		AttrOrderID: m.OrderID,
		AttrUserID:  m.UserID,
	}
}

func (m ConfirmationMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeConfirmationMessage(body []byte) (ConfirmationMessage, error) {
	var m ConfirmationMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("decode confirmation message: %w", err)
	}
	if m.OrderID == "" {
		return m, fmt.Errorf("decode confirmation message: missing orderId")
	}
	return m, nil
}

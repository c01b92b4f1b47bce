package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-pipeline/internal/core/domain"
)

const (
	TypeOrderConfirmation = "ORDER_CONFIRMATION"
	TypeUndeliverable     = "ORDER_NOTIFICATION_FAILED"
)

const rule = "----------------------------------------"

type Rendered struct {
	Subject string
	Text    string
}

// FormatPrice renders minor currency units as dollars: 4999 -> "$49.99".
func FormatPrice(minor int64) string {
	return "$" + decimal.New(minor, -2).StringFixed(2)
}

// ShortOrderID is the customer-facing order reference.
func ShortOrderID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

func firstItem(msg domain.ConfirmationMessage) (string, int) {
	if len(msg.Items) == 0 {
		return "Product", 1
	}
	return msg.Items[0].ProductName, msg.Items[0].Quantity
}

func RenderConfirmation(msg domain.ConfirmationMessage) Rendered {
	product, quantity := firstItem(msg)

	var b strings.Builder
	b.WriteString("ORDER CONFIRMATION\n==================\n\n")
	b.WriteString("Thank you for your purchase!\n\n")
	b.WriteString("ORDER DETAILS\n" + rule + "\n")
	fmt.Fprintf(&b, "Order ID:     #%s\n", ShortOrderID(msg.OrderID))
	fmt.Fprintf(&b, "Date:         %s\n\n", msg.CreatedAt.UTC().Format("Monday, January 2, 2006 15:04 MST"))
	b.WriteString("ITEMS\n" + rule + "\n")
	fmt.Fprintf(&b, "%s\n  Quantity:   %d\n\n", product, quantity)
	fmt.Fprintf(&b, "TOTAL:        %s\n\n", FormatPrice(msg.TotalAmount))
	b.WriteString(rule + "\n\n")
	b.WriteString("Your order has been confirmed and is being processed.")

	return Rendered{
		Subject: "Order Confirmation - #" + ShortOrderID(msg.OrderID),
		Text:    b.String(),
	}
}

func RenderNewOrderAlert(msg domain.ConfirmationMessage) Rendered {
	product, quantity := firstItem(msg)

	var b strings.Builder
	b.WriteString("NEW ORDER RECEIVED\n==================\n\n")
	fmt.Fprintf(&b, "Order ID:     %s\n", msg.OrderID)
	fmt.Fprintf(&b, "Customer:     %s\n", msg.UserEmail)
	fmt.Fprintf(&b, "Product:      %s\n", product)
	fmt.Fprintf(&b, "Quantity:     %d\n", quantity)
	fmt.Fprintf(&b, "Total:        %s\n", FormatPrice(msg.TotalAmount))
	fmt.Fprintf(&b, "Date:         %s\n", msg.CreatedAt.UTC().Format(time.RFC3339))

	return Rendered{
		Subject: fmt.Sprintf("[ORDER] New Order #%s - %s", ShortOrderID(msg.OrderID), FormatPrice(msg.TotalAmount)),
		Text:    b.String(),
	}
}

func RenderUndeliverableAlert(msg domain.ConfirmationMessage, deliveryCount int) Rendered {
	var b strings.Builder
	b.WriteString("ORDER NOTIFICATION FAILED\n=========================\n\n")
	fmt.Fprintf(&b, "Order ID:       %s\n", msg.OrderID)
	fmt.Fprintf(&b, "Customer:       %s\n", msg.UserEmail)
	fmt.Fprintf(&b, "Total:          %s\n", FormatPrice(msg.TotalAmount))
	fmt.Fprintf(&b, "Delivery count: %d\n\n", deliveryCount)
	b.WriteString("The confirmation could not be delivered. The order remains PENDING.")

	return Rendered{
		Subject: fmt.Sprintf("[ALERT] Order notification failed #%s", ShortOrderID(msg.OrderID)),
		Text:    b.String(),
	}
}

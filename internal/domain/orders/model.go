package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/auth"
)

const (
	StatusPending   ledger.Status = "pending"
	StatusShipped   ledger.Status = "shipped"
	StatusDelivered ledger.Status = "delivered"
	StatusCancelled ledger.Status = "cancelled"
)

// Machine is the strict forward order lifecycle. Cancellation is only
// possible before delivery.
var Machine = ledger.NewMachine("order", map[ledger.Status][]ledger.Status{
	StatusPending:   {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
})

type LineItem struct {
	MedicineID   string          `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Total           decimal.Decimal `json:"total"`
	Status          ledger.Status   `json:"status"`
	Items           []LineItem      `json:"items"`
	CustomerName    string          `json:"customer_name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	ShippingAddress string          `json:"shipping_address"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	Carrier         *string         `json:"carrier,omitempty"`
	StatusMessage   *string         `json:"status_message,omitempty"`
	UpdatedBy       string          `json:"updated_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ItemsTotal sums the line items. It can differ from Total when the order
// carried shipping or discounts at checkout.
func (o Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range o.Items {
		sum = sum.Add(li.Subtotal())
	}
	return sum
}

// TransitionRequest is the admin's request to move an order.
type TransitionRequest struct {
	Status         ledger.Status `json:"status"`
	Message        string        `json:"message"`
	TrackingNumber string        `json:"tracking_number"`
	Carrier        string        `json:"carrier"`
}

// ApplyTransition returns o moved to req.Status. It performs no I/O.
func ApplyTransition(o Order, req TransitionRequest, actor auth.Actor, now time.Time) (Order, error) {
	if err := Machine.Validate(o.Status, req.Status); err != nil {
		return o, err
	}
	if req.Status != StatusShipped && (req.TrackingNumber != "" || req.Carrier != "") {
		return o, &ledger.ValidationError{Entity: "order", Field: "tracking_number", Reason: "tracking details are only recorded when shipping"}
	}

	next := o
	next.Status = req.Status
	next.UpdatedAt = now
	next.UpdatedBy = actor.ID
	if msg := strings.TrimSpace(req.Message); msg != "" {
		next.StatusMessage = &msg
	}
	if tn := strings.TrimSpace(req.TrackingNumber); tn != "" {
		next.TrackingNumber = &tn
	}
	if carrier := strings.TrimSpace(req.Carrier); carrier != "" {
		next.Carrier = &carrier
	}
	return next, nil
}

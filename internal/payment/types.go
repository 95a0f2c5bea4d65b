package payment

import (
	"time"

	"github.com/noah-isme/backend-giving/internal/fees"
)

// Status is the normalised lifecycle state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// MethodType is the kind of stored payment method.
type MethodType string

const (
	MethodTypeCard        MethodType = "card"
	MethodTypeBankAccount MethodType = "bank_account"
	MethodTypeACH         MethodType = "ach"
)

// FeeMethod maps a stored method type onto the fee rail it is charged on.
func (t MethodType) FeeMethod() fees.Method {
	switch t {
	case MethodTypeBankAccount, MethodTypeACH:
		return fees.MethodACH
	default:
		return fees.MethodCard
	}
}

// Address is a postal address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Customer is a donor record held by the vendor. ID is vendor-assigned.
type Customer struct {
	ID        string            `json:"id,omitempty"`
	Email     string            `json:"email"`
	FirstName string            `json:"firstName,omitempty"`
	LastName  string            `json:"lastName,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Address   *Address          `json:"address,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CardDetails is the non-sensitive part of a card.
type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

// BankAccountDetails is the non-sensitive part of a bank account.
type BankAccountDetails struct {
	BankName    string `json:"bankName"`
	Last4       string `json:"last4"`
	AccountType string `json:"accountType"`
}

// PaymentMethod is a stored instrument attached to a customer.
type PaymentMethod struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customerId"`
	Type        MethodType          `json:"type"`
	Card        *CardDetails        `json:"card,omitempty"`
	BankAccount *BankAccountDetails `json:"bankAccount,omitempty"`
	IsDefault   bool                `json:"isDefault"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// Payment is a single charge.
type Payment struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Status         Status            `json:"status"`
	Customer       *Customer         `json:"customer,omitempty"`
	PaymentMethod  *PaymentMethod    `json:"paymentMethod,omitempty"`
	FeeAmount      int64             `json:"feeAmount"`
	NetAmount      int64             `json:"netAmount"`
	AmountRefunded int64             `json:"amountRefunded"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	FailureReason  string            `json:"failureReason,omitempty"`
	ReceiptURL     string            `json:"receiptUrl,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// SubscriptionStatus is the lifecycle state of a recurring donation.
type SubscriptionStatus string

const (
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPaused     SubscriptionStatus = "paused"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
)

// Subscription is a recurring donation.
type Subscription struct {
	ID                 string             `json:"id"`
	Provider           string             `json:"provider"`
	Customer           *Customer          `json:"customer,omitempty"`
	PaymentMethod      *PaymentMethod     `json:"paymentMethod,omitempty"`
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	Interval           Interval           `json:"interval"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	NextPaymentDate    *time.Time         `json:"nextPaymentDate,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	CancelReason       string             `json:"cancelReason,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// RefundStatus is the state of a refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// Refund returns funds from a payment.
type Refund struct {
	ID        string       `json:"id"`
	PaymentID string       `json:"paymentId"`
	Amount    int64        `json:"amount"`
	Status    RefundStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// EventType is the vendor-neutral webhook event vocabulary.
type EventType string

const (
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventPaymentFailed         EventType = "payment.failed"
	EventPaymentProcessing     EventType = "payment.processing"
	EventPaymentCancelled      EventType = "payment.cancelled"
	EventPaymentRefunded       EventType = "payment.refunded"
	EventRefundSucceeded       EventType = "refund.succeeded"
	EventRefundFailed          EventType = "refund.failed"
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionUpdated   EventType = "subscription.updated"
	EventSubscriptionPaused    EventType = "subscription.paused"
	EventSubscriptionResumed   EventType = "subscription.resumed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
)

// WebhookEvent is a verified, normalised vendor notification. Exactly one of
// Payment, Subscription or Refund is set.
type WebhookEvent struct {
	ID           string        `json:"id"`
	Type         EventType     `json:"type"`
	Provider     string        `json:"provider"`
	Payment      *Payment      `json:"payment,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Refund       *Refund       `json:"refund,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// CreatePaymentRequest opens a one-time charge. Amount is the total to charge,
// already grossed up when the donor covers fees.
type CreatePaymentRequest struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	MethodType      MethodType
	Description     string
	Metadata        map[string]string
	IdempotencyKey  string
}

// ListPaymentsRequest filters ListPayments.
type ListPaymentsRequest struct {
	CustomerID string
	Limit      int
}

// CreatePaymentMethodRequest attaches a tokenised instrument to a customer.
type CreatePaymentMethodRequest struct {
	CustomerID string
	Type       MethodType
	// Token is the vendor-issued token produced by client-side tokenisation.
	Token      string
	SetDefault bool
}

// CreateSubscriptionRequest opens a recurring donation.
type CreateSubscriptionRequest struct {
	CustomerID      string
	PaymentMethodID string
	MethodType      MethodType
	Amount          int64
	Currency        string
	Interval        Interval
	Description     string
	Metadata        map[string]string
	IdempotencyKey  string
}

// CancelOptions controls CancelSubscription.
type CancelOptions struct {
	CancelImmediately bool
	Reason            string
}

// CreateRefundRequest refunds a payment. A nil Amount refunds whatever remains.
type CreateRefundRequest struct {
	PaymentID      string
	Amount         *int64
	Reason         string
	IdempotencyKey string
}

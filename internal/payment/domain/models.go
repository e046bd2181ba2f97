// Package domain contains the payment ledger models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	documentdomain "github.com/billforge/billforge/internal/document/domain"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is one ledger event. DocumentID is nil for unassigned
// payments, which are held as general credit and never applied to a
// balance. Refunded amounts accumulate on the original payment row.
type Payment struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID      `json:"org_id" gorm:"not null;index"`
	DocumentID     *snowflake.ID     `json:"document_id" gorm:"index"`
	Amount         decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	RefundedAmount decimal.Decimal   `json:"refunded_amount" gorm:"type:decimal(20,2);not null;default:0"`
	Status         PaymentStatus     `json:"status" gorm:"type:text;not null;default:'COMPLETED'"`
	Note           string            `json:"note" gorm:"type:text"`
	PaymentDate    time.Time         `json:"payment_date" gorm:"not null"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

type RecordPaymentRequest struct {
	DocumentID  *string         `json:"document_id"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	PaymentDate *time.Time      `json:"payment_date"`
}

type RefundPaymentRequest struct {
	PaymentID string `json:"payment_id"`
	// Amount to refund. Zero means the full remaining payment amount.
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type Service interface {
	// RecordPayment persists a completed payment and, when it references
	// a document, applies it to that document's balance.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*Payment, error)
	// RefundPayment applies a negative amount back to the document (if
	// any) and marks the payment refunded once fully returned.
	RefundPayment(ctx context.Context, req RefundPaymentRequest) (*Payment, error)
	// ApplyPayment adjusts a document's paid total by amount (negative
	// for refunds) inside one transaction and re-derives its status.
	ApplyPayment(ctx context.Context, documentID snowflake.ID, amount decimal.Decimal) (*documentdomain.Document, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidRefund     = errors.New("invalid_refund")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidPaymentID  = errors.New("invalid_payment_id")
	ErrRefundExceedsPaid = errors.New("refund_exceeds_payment")
)

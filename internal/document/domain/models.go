// Package domain contains persistence models for billing documents.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DocumentStatus represents document lifecycle states.
type DocumentStatus string

const (
	DocumentStatusDraft   DocumentStatus = "DRAFT"
	DocumentStatusSent    DocumentStatus = "SENT"
	DocumentStatusViewed  DocumentStatus = "VIEWED"
	DocumentStatusPartial DocumentStatus = "PARTIAL"
	DocumentStatusPaid    DocumentStatus = "PAID"
)

// Document represents an invoice-like billing document. Monetary columns
// hold 2dp decimals; Balance may go negative when the customer is in
// credit.
type Document struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID   `json:"org_id" gorm:"not null;index;uniqueIndex:idx_documents_org_document_number,priority:1"`
	CustomerID     snowflake.ID   `json:"customer_id" gorm:"not null;index"`
	DocumentNumber string         `json:"document_number" gorm:"type:text;not null;uniqueIndex:idx_documents_org_document_number,priority:2"`
	Status         DocumentStatus `json:"status" gorm:"type:text;not null;default:'DRAFT'"`

	Discount         decimal.Decimal `json:"discount" gorm:"type:decimal(20,2);not null;default:0"`
	IsAmountDiscount bool            `json:"is_amount_discount" gorm:"not null;default:false"`
	TaxRate          decimal.Decimal `json:"tax_rate" gorm:"type:decimal(20,4);not null;default:0"`

	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(20,2);not null;default:0"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"type:decimal(20,2);not null;default:0"`
	TaxAmount      decimal.Decimal `json:"tax_amount" gorm:"type:decimal(20,2);not null;default:0"`
	Total          decimal.Decimal `json:"total" gorm:"type:decimal(20,2);not null;default:0"`
	Paid           decimal.Decimal `json:"paid" gorm:"type:decimal(20,2);not null;default:0"`
	Balance        decimal.Decimal `json:"balance" gorm:"type:decimal(20,2);not null;default:0"`

	IssueDate time.Time  `json:"issue_date" gorm:"not null"`
	DueDate   *time.Time `json:"due_date"`
	SentDate  *time.Time `json:"sent_date"`
	PaidDate  *time.Time `json:"paid_date"`

	Metadata datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;not null;default:'{}'"`

	LineItems []LineItem `json:"line_items" gorm:"foreignKey:DocumentID"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// LineItem represents a line on a document. LineTotal is frozen at write
// time from quantity, unit price and discount.
type LineItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID    `json:"org_id" gorm:"not null;index"`
	DocumentID  snowflake.ID    `json:"document_id" gorm:"not null;index"`
	Description string          `json:"description" gorm:"type:text"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:decimal(20,4);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(20,2);not null"`
	Discount    decimal.Decimal `json:"discount" gorm:"type:decimal(20,2);not null;default:0"`
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(20,2);not null"`
	SortOrder   int             `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "line_items" }

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrDocumentNotFound  = errors.New("document_not_found")
	ErrDuplicateNumber   = errors.New("duplicate_document_number")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrNotSendable       = errors.New("document_not_sendable")
	ErrAuditNoteRequired = errors.New("audit_note_required")
	ErrInvalidDocumentID = errors.New("invalid_document_id")
)

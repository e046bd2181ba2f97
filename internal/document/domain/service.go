package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/billforge/billforge/pkg/db/pagination"
)

// LineItemInput is one line as submitted by a caller.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
}

type CreateDocumentRequest struct {
	CustomerID       string          `json:"customer_id"`
	DocumentNumber   string          `json:"document_number"`
	Discount         decimal.Decimal `json:"discount"`
	IsAmountDiscount bool            `json:"is_amount_discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	IssueDate        *time.Time      `json:"issue_date"`
	DueDate          *time.Time      `json:"due_date"`
	LineItems        []LineItemInput `json:"line_items"`
}

// UpdateDocumentRequest replaces the mutable fields wholesale; totals are
// always recomputed from the submitted lines.
type UpdateDocumentRequest struct {
	Discount         decimal.Decimal `json:"discount"`
	IsAmountDiscount bool            `json:"is_amount_discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	DueDate          *time.Time      `json:"due_date"`
	LineItems        []LineItemInput `json:"line_items"`
}

type ListDocumentRequest struct {
	Status      *DocumentStatus
	CustomerID  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	DueFrom     *time.Time
	DueTo       *time.Time
	PageToken   string
	PageSize    int
}

type ListDocumentResponse struct {
	pagination.PageInfo
	Documents []Document `json:"documents"`
}

type Service interface {
	Create(ctx context.Context, req CreateDocumentRequest) (*Document, error)
	Update(ctx context.Context, id string, req UpdateDocumentRequest) (*Document, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, req ListDocumentRequest) (ListDocumentResponse, error)
	MarkSent(ctx context.Context, id string) (*Document, error)
	MarkViewed(ctx context.Context, id string) (*Document, error)
	MarkPaid(ctx context.Context, id, note string) (*Document, error)
}

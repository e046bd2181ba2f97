package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/clock"
	"github.com/billforge/billforge/internal/document/calc"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	"github.com/billforge/billforge/internal/orgcontext"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	"github.com/billforge/billforge/pkg/db"
	"github.com/billforge/billforge/pkg/db/option"
	"github.com/billforge/billforge/pkg/db/pagination"
	"github.com/billforge/billforge/pkg/repository"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       repository.Repository[documentdomain.Document]
	PaymentSvc paymentdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       repository.Repository[documentdomain.Document]
	paymentSvc paymentdomain.Service
}

func NewService(p Params) documentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("document.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
	}
}

func (s *Service) Create(ctx context.Context, req documentdomain.CreateDocumentRequest) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidOrganization
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return nil, fmt.Errorf("%w: customer_id", calc.ErrInvalidInput)
	}

	totals, err := recompute(req.LineItems, req.Discount, req.IsAmountDiscount, req.TaxRate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}

	doc := &documentdomain.Document{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		CustomerID:       customerID,
		DocumentNumber:   strings.TrimSpace(req.DocumentNumber),
		Status:           documentdomain.DocumentStatusDraft,
		Discount:         req.Discount,
		IsAmountDiscount: req.IsAmountDiscount,
		TaxRate:          req.TaxRate,
		Subtotal:         totals.Subtotal,
		DiscountAmount:   totals.DiscountAmount,
		TaxAmount:        totals.TaxAmount,
		Total:            totals.Total,
		Paid:             decimal.Zero,
		Balance:          totals.Total,
		IssueDate:        issueDate,
		DueDate:          req.DueDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if doc.DocumentNumber == "" {
		doc.DocumentNumber = fmt.Sprintf("DOC-%s", doc.ID.String())
	}

	lines := s.buildLines(orgID, doc.ID, req.LineItems, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return tx.WithContext(ctx).Create(&lines).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, documentdomain.ErrDuplicateNumber
		}
		return nil, err
	}

	doc.LineItems = lines
	s.log.Info("document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("total", doc.Total.String()),
	)
	return doc, nil
}

// Update replaces line items wholesale and recomputes every derived
// amount. The balance shifts with the new total while payments already
// applied stay put, so status is re-derived as well.
func (s *Service) Update(ctx context.Context, id string, req documentdomain.UpdateDocumentRequest) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidOrganization
	}

	documentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, documentdomain.ErrInvalidDocumentID
	}

	totals, err := recompute(req.LineItems, req.Discount, req.IsAmountDiscount, req.TaxRate)
	if err != nil {
		return nil, err
	}

	var doc documentdomain.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Raw(
			`SELECT * FROM documents WHERE id = ? AND org_id = ? FOR UPDATE`,
			documentID, orgID,
		).Scan(&doc)
		if result.Error != nil {
			return result.Error
		}
		if doc.ID == 0 {
			return documentdomain.ErrDocumentNotFound
		}

		now := s.clock.Now()
		balance := totals.Total.Sub(doc.Paid)
		status := documentdomain.DeriveFromBalance(doc.Status, balance, totals.Total)

		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM line_items WHERE document_id = ?`, doc.ID,
		).Error; err != nil {
			return err
		}

		lines := s.buildLines(orgID, doc.ID, req.LineItems, now)
		if len(lines) > 0 {
			if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE documents
			 SET discount = ?, is_amount_discount = ?, tax_rate = ?,
			     subtotal = ?, discount_amount = ?, tax_amount = ?, total = ?,
			     balance = ?, status = ?, due_date = ?, updated_at = ?
			 WHERE id = ?`,
			req.Discount, req.IsAmountDiscount, req.TaxRate,
			totals.Subtotal, totals.DiscountAmount, totals.TaxAmount, totals.Total,
			balance, status, req.DueDate, now, doc.ID,
		).Error; err != nil {
			return err
		}

		doc.Discount = req.Discount
		doc.IsAmountDiscount = req.IsAmountDiscount
		doc.TaxRate = req.TaxRate
		doc.Subtotal = totals.Subtotal
		doc.DiscountAmount = totals.DiscountAmount
		doc.TaxAmount = totals.TaxAmount
		doc.Total = totals.Total
		doc.Balance = balance
		doc.Status = status
		doc.DueDate = req.DueDate
		doc.UpdatedAt = now
		doc.LineItems = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidOrganization
	}

	documentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, documentdomain.ErrInvalidDocumentID
	}

	doc, err := s.repo.FindOne(ctx,
		&documentdomain.Document{ID: documentID, OrgID: orgID},
		option.WithPreload("LineItems"),
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, documentdomain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, req documentdomain.ListDocumentRequest) (documentdomain.ListDocumentResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return documentdomain.ListDocumentResponse{}, documentdomain.ErrInvalidOrganization
	}

	filter := &documentdomain.Document{OrgID: orgID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return documentdomain.ListDocumentResponse{}, fmt.Errorf("%w: customer_id", calc.ErrInvalidInput)
		}
		filter.CustomerID = customerID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	options := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	}
	if req.CreatedFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.GTE,
			Value:    *req.CreatedFrom,
		}))
	}
	if req.CreatedTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LTE,
			Value:    *req.CreatedTo,
		}))
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_date",
			Operator: option.GTE,
			Value:    *req.DueFrom,
		}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_date",
			Operator: option.LTE,
			Value:    *req.DueTo,
		}))
	}

	items, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return documentdomain.ListDocumentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(d *documentdomain.Document) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        d.ID.String(),
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	if len(items) > pageSize {
		items = items[:pageSize]
	}
	documents := make([]documentdomain.Document, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		documents = append(documents, *item)
	}

	return documentdomain.ListDocumentResponse{
		PageInfo:  *pageInfo,
		Documents: documents,
	}, nil
}

func (s *Service) MarkSent(ctx context.Context, id string) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidOrganization
	}

	documentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, documentdomain.ErrInvalidDocumentID
	}

	var doc documentdomain.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Raw(
			`SELECT * FROM documents WHERE id = ? AND org_id = ? FOR UPDATE`,
			documentID, orgID,
		).Scan(&doc)
		if result.Error != nil {
			return result.Error
		}
		if doc.ID == 0 {
			return documentdomain.ErrDocumentNotFound
		}

		next, changed := documentdomain.NextOnSend(doc.Status)
		if !changed {
			return nil
		}

		var lineCount int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(*) FROM line_items WHERE document_id = ?`, doc.ID,
		).Scan(&lineCount).Error; err != nil {
			return err
		}
		if lineCount == 0 || !doc.Total.IsPositive() {
			return documentdomain.ErrNotSendable
		}

		now := s.clock.Now()
		sentDate := doc.SentDate
		if sentDate == nil {
			sentDate = &now
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE documents SET status = ?, sent_date = ?, updated_at = ? WHERE id = ?`,
			next, sentDate, now, doc.ID,
		).Error; err != nil {
			return err
		}

		doc.Status = next
		doc.SentDate = sentDate
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Service) MarkViewed(ctx context.Context, id string) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidOrganization
	}

	documentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, documentdomain.ErrInvalidDocumentID
	}

	var doc documentdomain.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Raw(
			`SELECT * FROM documents WHERE id = ? AND org_id = ? FOR UPDATE`,
			documentID, orgID,
		).Scan(&doc)
		if result.Error != nil {
			return result.Error
		}
		if doc.ID == 0 {
			return documentdomain.ErrDocumentNotFound
		}

		next, changed, err := documentdomain.NextOnView(doc.Status)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		now := s.clock.Now()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`,
			next, now, doc.ID,
		).Error; err != nil {
			return err
		}

		doc.Status = next
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarkPaid is the manual override: it settles the outstanding balance
// through the payment ledger rather than writing status directly, and
// requires an audit note explaining why.
func (s *Service) MarkPaid(ctx context.Context, id, note string) (*documentdomain.Document, error) {
	if strings.TrimSpace(note) == "" {
		return nil, documentdomain.ErrAuditNoteRequired
	}

	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.Balance.IsPositive() {
		return doc, nil
	}

	docID := doc.ID.String()
	if _, err := s.paymentSvc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		DocumentID: &docID,
		Amount:     doc.Balance,
		Note:       strings.TrimSpace(note),
	}); err != nil {
		return nil, err
	}

	s.log.Info("document manually marked paid",
		zap.String("document_id", docID),
	)
	return s.Get(ctx, id)
}

func (s *Service) buildLines(orgID, documentID snowflake.ID, inputs []documentdomain.LineItemInput, now time.Time) []documentdomain.LineItem {
	lines := make([]documentdomain.LineItem, 0, len(inputs))
	for i, input := range inputs {
		// Inputs were validated by recompute; LineTotal cannot fail here.
		lineTotal, _ := calc.LineTotal(input.Quantity, input.UnitPrice, input.Discount)
		lines = append(lines, documentdomain.LineItem{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			DocumentID:  documentID,
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			Discount:    input.Discount,
			LineTotal:   lineTotal,
			SortOrder:   i,
			CreatedAt:   now,
		})
	}
	return lines
}

func recompute(inputs []documentdomain.LineItemInput, discount decimal.Decimal, isAmountDiscount bool, taxRate decimal.Decimal) (calc.TotalsResult, error) {
	lines := make([]calc.LineInput, 0, len(inputs))
	for _, input := range inputs {
		lines = append(lines, calc.LineInput{
			Quantity:  input.Quantity,
			UnitPrice: input.UnitPrice,
			Discount:  input.Discount,
		})
	}
	return calc.Totals(lines, discount, isAmountDiscount, taxRate)
}

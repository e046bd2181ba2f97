package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/clock"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	"github.com/billforge/billforge/internal/orgcontext"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (*paymentdomain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	var documentID *snowflake.ID
	if req.DocumentID != nil && strings.TrimSpace(*req.DocumentID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.DocumentID))
		if err != nil {
			return nil, documentdomain.ErrInvalidDocumentID
		}
		documentID = &parsed
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}

	payment := &paymentdomain.Payment{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		DocumentID:     documentID,
		Amount:         req.Amount,
		RefundedAmount: decimal.Zero,
		Status:         paymentdomain.PaymentStatusCompleted,
		Note:           strings.TrimSpace(req.Note),
		PaymentDate:    paymentDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return err
		}
		if documentID == nil {
			// Unassigned payments sit as general credit; nothing to
			// apply against.
			return nil
		}
		_, err := s.applyWithTx(ctx, tx, orgID, *documentID, req.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("amount", payment.Amount.String()),
		zap.Bool("assigned", documentID != nil),
	)
	return payment, nil
}

func (s *Service) RefundPayment(ctx context.Context, req paymentdomain.RefundPaymentRequest) (*paymentdomain.Payment, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(req.PaymentID))
	if err != nil {
		return nil, paymentdomain.ErrInvalidPaymentID
	}

	var payment paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Raw(
			`SELECT * FROM payments WHERE id = ? AND org_id = ? FOR UPDATE`,
			paymentID, orgID,
		).Scan(&payment)
		if result.Error != nil {
			return result.Error
		}
		if payment.ID == 0 {
			return paymentdomain.ErrPaymentNotFound
		}

		remaining := payment.Amount.Sub(payment.RefundedAmount)
		amount := req.Amount
		if amount.IsZero() {
			amount = remaining
		}
		if !amount.IsPositive() {
			return paymentdomain.ErrInvalidAmount
		}
		if amount.GreaterThan(remaining) {
			return paymentdomain.ErrRefundExceedsPaid
		}

		if payment.DocumentID != nil {
			if _, err := s.applyWithTx(ctx, tx, orgID, *payment.DocumentID, amount.Neg()); err != nil {
				return err
			}
		}

		payment.RefundedAmount = payment.RefundedAmount.Add(amount)
		if payment.RefundedAmount.Equal(payment.Amount) {
			payment.Status = paymentdomain.PaymentStatusRefunded
		}
		payment.UpdatedAt = s.clock.Now()

		return tx.WithContext(ctx).Exec(
			`UPDATE payments SET refunded_amount = ?, status = ?, updated_at = ? WHERE id = ?`,
			payment.RefundedAmount, payment.Status, payment.UpdatedAt, payment.ID,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("refunded_amount", payment.RefundedAmount.String()),
	)
	return &payment, nil
}

func (s *Service) ApplyPayment(ctx context.Context, documentID snowflake.ID, amount decimal.Decimal) (*documentdomain.Document, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, paymentdomain.ErrInvalidOrganization
	}

	var doc *documentdomain.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.applyWithTx(ctx, tx, orgID, documentID, amount)
		if err != nil {
			return err
		}
		doc = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// applyWithTx adjusts the document's paid total under a row lock and
// re-derives its status from the resulting balance. The caller owns the
// transaction; payment row inserts ride in the same commit.
func (s *Service) applyWithTx(ctx context.Context, tx *gorm.DB, orgID, documentID snowflake.ID, amount decimal.Decimal) (*documentdomain.Document, error) {
	var doc documentdomain.Document
	result := tx.WithContext(ctx).Raw(
		`SELECT * FROM documents WHERE id = ? AND org_id = ? FOR UPDATE`,
		documentID, orgID,
	).Scan(&doc)
	if result.Error != nil {
		return nil, result.Error
	}
	if doc.ID == 0 {
		return nil, documentdomain.ErrDocumentNotFound
	}

	newPaid := doc.Paid.Add(amount)
	if newPaid.IsNegative() {
		return nil, paymentdomain.ErrInvalidRefund
	}

	// Balance stays unclamped: overpayment goes negative and reads as
	// customer credit.
	balance := doc.Total.Sub(newPaid)
	status := documentdomain.DeriveFromBalance(doc.Status, balance, doc.Total)

	paidDate := doc.PaidDate
	if status == documentdomain.DocumentStatusPaid && paidDate == nil {
		now := s.clock.Now()
		paidDate = &now
	}

	updatedAt := s.clock.Now()
	err := tx.WithContext(ctx).Exec(
		`UPDATE documents
		 SET paid = ?, balance = ?, status = ?, paid_date = ?, updated_at = ?
		 WHERE id = ?`,
		newPaid, balance, status, paidDate, updatedAt, doc.ID,
	).Error
	if err != nil {
		return nil, err
	}

	doc.Paid = newPaid
	doc.Balance = balance
	doc.Status = status
	doc.PaidDate = paidDate
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

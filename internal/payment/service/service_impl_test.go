package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/billforge/billforge/internal/clock"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	documentservice "github.com/billforge/billforge/internal/document/service"
	"github.com/billforge/billforge/internal/orgcontext"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	paymentservice "github.com/billforge/billforge/internal/payment/service"
	"github.com/billforge/billforge/internal/testdb"
	"github.com/billforge/billforge/pkg/repository"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fixtures struct {
	ctx    context.Context
	clock  *clock.FakeClock
	docSvc documentdomain.Service
	paySvc paymentdomain.Service
}

func setup(t *testing.T) *fixtures {
	t.Helper()
	db := testdb.Open(t)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC))

	paySvc := paymentservice.NewService(paymentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
	})
	docSvc := documentservice.NewService(documentservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fc,
		Repo:       repository.ProvideStore[documentdomain.Document](db),
		PaymentSvc: paySvc,
	})

	ctx := orgcontext.WithOrgID(context.Background(), node.Generate())
	return &fixtures{ctx: ctx, clock: fc, docSvc: docSvc, paySvc: paySvc}
}

// createDocument creates the standard test document: subtotal 600,
// 10 percent discount, 15 percent tax, total 621.
func (f *fixtures) createDocument(t *testing.T) *documentdomain.Document {
	t.Helper()
	doc, err := f.docSvc.Create(f.ctx, documentdomain.CreateDocumentRequest{
		CustomerID: "2010735548360036353",
		Discount:   d("10"),
		TaxRate:    d("15"),
		LineItems: []documentdomain.LineItemInput{
			{Description: "consulting", Quantity: d("3"), UnitPrice: d("100.00")},
			{Description: "hosting", Quantity: d("2"), UnitPrice: d("150.00")},
		},
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if !doc.Total.Equal(d("621.00")) {
		t.Fatalf("expected total 621.00, got %s", doc.Total)
	}
	return doc
}

func (f *fixtures) pay(t *testing.T, documentID string, amount decimal.Decimal) *paymentdomain.Payment {
	t.Helper()
	payment, err := f.paySvc.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		DocumentID: &documentID,
		Amount:     amount,
	})
	if err != nil {
		t.Fatalf("record payment of %s: %v", amount, err)
	}
	return payment
}

func (f *fixtures) reload(t *testing.T, documentID string) *documentdomain.Document {
	t.Helper()
	doc, err := f.docSvc.Get(f.ctx, documentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	return doc
}

func TestPartialThenFullPayment(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)
	id := doc.ID.String()

	f.pay(t, id, d("300.00"))

	got := f.reload(t, id)
	if got.Status != documentdomain.DocumentStatusPartial {
		t.Fatalf("expected PARTIAL after partial payment, got %s", got.Status)
	}
	if !got.Balance.Equal(d("321.00")) {
		t.Fatalf("expected balance 321.00, got %s", got.Balance)
	}
	if got.PaidDate != nil {
		t.Fatal("paid_date must not be set on a partial payment")
	}

	f.pay(t, id, d("321.00"))

	got = f.reload(t, id)
	if got.Status != documentdomain.DocumentStatusPaid {
		t.Fatalf("expected PAID after settling, got %s", got.Status)
	}
	if !got.Balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", got.Balance)
	}
	if got.PaidDate == nil {
		t.Fatal("expected paid_date to be set")
	}
}

func TestRefundReopensDocument(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)
	id := doc.ID.String()

	payment := f.pay(t, id, d("621.00"))
	paidAt := f.reload(t, id).PaidDate
	if paidAt == nil {
		t.Fatal("expected paid_date after full payment")
	}

	refunded, err := f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
		Amount:    d("50.00"),
		Note:      "goodwill credit",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !refunded.RefundedAmount.Equal(d("50.00")) {
		t.Fatalf("expected refunded_amount 50.00, got %s", refunded.RefundedAmount)
	}
	if refunded.Status != paymentdomain.PaymentStatusCompleted {
		t.Fatalf("partially refunded payment must stay COMPLETED, got %s", refunded.Status)
	}

	got := f.reload(t, id)
	if got.Status != documentdomain.DocumentStatusPartial {
		t.Fatalf("expected PARTIAL after partial refund, got %s", got.Status)
	}
	if !got.Balance.Equal(d("50.00")) {
		t.Fatalf("expected balance 50.00, got %s", got.Balance)
	}
	// paid_date is a historical fact; the refund does not erase it.
	if got.PaidDate == nil || got.PaidDate.Unix() != paidAt.Unix() {
		t.Fatalf("expected paid_date %v retained, got %v", paidAt, got.PaidDate)
	}
}

func TestFullRefundRestoresSent(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)
	id := doc.ID.String()

	payment := f.pay(t, id, d("621.00"))

	refunded, err := f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != paymentdomain.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", refunded.Status)
	}
	if !refunded.RefundedAmount.Equal(d("621.00")) {
		t.Fatalf("expected full amount refunded, got %s", refunded.RefundedAmount)
	}

	got := f.reload(t, id)
	if got.Status != documentdomain.DocumentStatusSent {
		t.Fatalf("expected SENT after full refund, got %s", got.Status)
	}
	if !got.Balance.Equal(d("621.00")) {
		t.Fatalf("expected balance restored to 621.00, got %s", got.Balance)
	}
}

func TestRefundExceedsRemaining(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)

	payment := f.pay(t, doc.ID.String(), d("100.00"))

	_, err := f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
		Amount:    d("150.00"),
	})
	if !errors.Is(err, paymentdomain.ErrRefundExceedsPaid) {
		t.Fatalf("expected ErrRefundExceedsPaid, got %v", err)
	}

	// Two refunds may not exceed the original amount either.
	if _, err := f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
		Amount:    d("80.00"),
	}); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	_, err = f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: payment.ID.String(),
		Amount:    d("30.00"),
	})
	if !errors.Is(err, paymentdomain.ErrRefundExceedsPaid) {
		t.Fatalf("expected ErrRefundExceedsPaid on cumulative overrefund, got %v", err)
	}
}

func TestRefundUnknownPayment(t *testing.T) {
	f := setup(t)

	_, err := f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: "2010735548360036353",
	})
	if !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}

	_, err = f.paySvc.RefundPayment(f.ctx, paymentdomain.RefundPaymentRequest{
		PaymentID: "not-a-snowflake",
	})
	if !errors.Is(err, paymentdomain.ErrInvalidPaymentID) {
		t.Fatalf("expected ErrInvalidPaymentID, got %v", err)
	}
}

func TestUnassignedPaymentIsCredit(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)

	payment, err := f.paySvc.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{
		Amount: d("200.00"),
		Note:   "on-account deposit",
	})
	if err != nil {
		t.Fatalf("record unassigned payment: %v", err)
	}
	if payment.DocumentID != nil {
		t.Fatal("unassigned payment must carry no document")
	}

	got := f.reload(t, doc.ID.String())
	if !got.Paid.IsZero() || !got.Balance.Equal(d("621.00")) {
		t.Fatalf("unassigned payment must not touch documents, paid=%s balance=%s", got.Paid, got.Balance)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	f := setup(t)

	_, err := f.paySvc.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{Amount: d("0")})
	if !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero amount, got %v", err)
	}

	_, err = f.paySvc.RecordPayment(f.ctx, paymentdomain.RecordPaymentRequest{Amount: d("-5.00")})
	if !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative amount, got %v", err)
	}

	_, err = f.paySvc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{Amount: d("10.00")})
	if !errors.Is(err, paymentdomain.ErrInvalidOrganization) {
		t.Fatalf("expected ErrInvalidOrganization without org context, got %v", err)
	}
}

func TestPaymentOrderIsCommutative(t *testing.T) {
	f := setup(t)

	first := f.createDocument(t)
	f.pay(t, first.ID.String(), d("300.00"))
	f.pay(t, first.ID.String(), d("321.00"))

	second := f.createDocument(t)
	f.pay(t, second.ID.String(), d("321.00"))
	f.pay(t, second.ID.String(), d("300.00"))

	a := f.reload(t, first.ID.String())
	b := f.reload(t, second.ID.String())
	if a.Status != b.Status || !a.Paid.Equal(b.Paid) || !a.Balance.Equal(b.Balance) {
		t.Fatalf("payment order changed outcome: %s/%s/%s vs %s/%s/%s",
			a.Status, a.Paid, a.Balance, b.Status, b.Paid, b.Balance)
	}
}

func TestOverpaymentBecomesCredit(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)

	f.pay(t, doc.ID.String(), d("700.00"))

	got := f.reload(t, doc.ID.String())
	if got.Status != documentdomain.DocumentStatusPaid {
		t.Fatalf("expected PAID on overpayment, got %s", got.Status)
	}
	if !got.Balance.Equal(d("-79.00")) {
		t.Fatalf("expected balance -79.00 (credit), got %s", got.Balance)
	}
}

func TestApplyCannotDriveLedgerNegative(t *testing.T) {
	f := setup(t)
	doc := f.createDocument(t)

	f.pay(t, doc.ID.String(), d("100.00"))

	_, err := f.paySvc.ApplyPayment(f.ctx, doc.ID, d("-150.00"))
	if !errors.Is(err, paymentdomain.ErrInvalidRefund) {
		t.Fatalf("expected ErrInvalidRefund, got %v", err)
	}

	// The failed application must not leak into the stored row.
	got := f.reload(t, doc.ID.String())
	if !got.Paid.Equal(d("100.00")) {
		t.Fatalf("expected paid unchanged at 100.00, got %s", got.Paid)
	}
}

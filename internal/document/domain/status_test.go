package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNextOnSend(t *testing.T) {
	next, changed := NextOnSend(DocumentStatusDraft)
	if !changed || next != DocumentStatusSent {
		t.Fatalf("expected draft -> sent, got %s (changed=%v)", next, changed)
	}

	// Sending again, or sending something further along, is a no-op.
	for _, current := range []DocumentStatus{DocumentStatusSent, DocumentStatusViewed, DocumentStatusPartial, DocumentStatusPaid} {
		next, changed := NextOnSend(current)
		if changed || next != current {
			t.Fatalf("expected %s unchanged, got %s (changed=%v)", current, next, changed)
		}
	}
}

func TestNextOnView(t *testing.T) {
	if _, _, err := NextOnView(DocumentStatusDraft); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for draft, got %v", err)
	}

	next, changed, err := NextOnView(DocumentStatusSent)
	if err != nil || !changed || next != DocumentStatusViewed {
		t.Fatalf("expected sent -> viewed, got %s (changed=%v, err=%v)", next, changed, err)
	}

	for _, current := range []DocumentStatus{DocumentStatusViewed, DocumentStatusPartial, DocumentStatusPaid} {
		next, changed, err := NextOnView(current)
		if err != nil || changed || next != current {
			t.Fatalf("expected %s unchanged, got %s (changed=%v, err=%v)", current, next, changed, err)
		}
	}
}

func TestDeriveFromBalance(t *testing.T) {
	total := d("621.00")

	tests := []struct {
		name    string
		current DocumentStatus
		balance decimal.Decimal
		want    DocumentStatus
	}{
		{"full payment", DocumentStatusSent, d("0"), DocumentStatusPaid},
		{"overpayment is credit", DocumentStatusSent, d("-10.00"), DocumentStatusPaid},
		{"partial payment", DocumentStatusSent, d("321.00"), DocumentStatusPartial},
		{"partial from draft", DocumentStatusDraft, d("321.00"), DocumentStatusPartial},
		{"full refund from partial", DocumentStatusPartial, total, DocumentStatusSent},
		{"full refund from paid", DocumentStatusPaid, total, DocumentStatusSent},
		{"no payments on draft", DocumentStatusDraft, total, DocumentStatusDraft},
		{"no payments on viewed", DocumentStatusViewed, total, DocumentStatusViewed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFromBalance(tt.current, tt.balance, total)
			if got != tt.want {
				t.Fatalf("DeriveFromBalance(%s, %s, %s) = %s, want %s",
					tt.current, tt.balance, total, got, tt.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	today := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	yesterday := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)

	doc := &Document{DueDate: &yesterday, Balance: d("100.00")}
	if !doc.IsOverdue(today) {
		t.Fatal("expected past-due document with balance to be overdue")
	}

	doc = &Document{DueDate: &yesterday, Balance: d("0")}
	if doc.IsOverdue(today) {
		t.Fatal("settled document must not be overdue")
	}

	doc = &Document{DueDate: &tomorrow, Balance: d("100.00")}
	if doc.IsOverdue(today) {
		t.Fatal("document due tomorrow must not be overdue")
	}

	doc = &Document{Balance: d("100.00")}
	if doc.IsOverdue(today) {
		t.Fatal("document without due date must not be overdue")
	}

	// Due today is not overdue yet.
	dueToday := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	doc = &Document{DueDate: &dueToday, Balance: d("100.00")}
	if doc.IsOverdue(today) {
		t.Fatal("document due today must not be overdue")
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// statusRank orders lifecycle states so forward-only checks stay cheap.
var statusRank = map[DocumentStatus]int{
	DocumentStatusDraft:   0,
	DocumentStatusSent:    1,
	DocumentStatusViewed:  2,
	DocumentStatusPartial: 3,
	DocumentStatusPaid:    4,
}

// AtLeast reports whether status has reached rank of target.
func (s DocumentStatus) AtLeast(target DocumentStatus) bool {
	return statusRank[s] >= statusRank[target]
}

// NextOnSend returns the status after a send action. Already-sent (or
// later) documents keep their status; the action is idempotent.
func NextOnSend(current DocumentStatus) (DocumentStatus, bool) {
	if current.AtLeast(DocumentStatusSent) {
		return current, false
	}
	return DocumentStatusSent, true
}

// NextOnView returns the status after a view event. Viewing a draft is
// an invalid transition; viewed or later is a no-op.
func NextOnView(current DocumentStatus) (DocumentStatus, bool, error) {
	if current == DocumentStatusDraft {
		return current, false, ErrInvalidTransition
	}
	if current.AtLeast(DocumentStatusViewed) {
		return current, false, nil
	}
	return DocumentStatusViewed, true, nil
}

// DeriveFromBalance re-derives status after a ledger application.
//
// balance <= 0 means paid (negative is customer credit), a partial
// payment leaves balance strictly between zero and total, and a refund
// that restores the full balance drops a previously partial or paid
// document back to sent.
func DeriveFromBalance(current DocumentStatus, balance, total decimal.Decimal) DocumentStatus {
	switch {
	case balance.LessThanOrEqual(decimal.Zero):
		return DocumentStatusPaid
	case balance.LessThan(total):
		return DocumentStatusPartial
	default:
		if current == DocumentStatusPartial || current == DocumentStatusPaid {
			return DocumentStatusSent
		}
		return current
	}
}

// IsOverdue reports whether the document is past due with money still
// owing. Overdue is derived on read and never stored.
func (d *Document) IsOverdue(today time.Time) bool {
	if d.DueDate == nil {
		return false
	}
	due := d.DueDate.Truncate(24 * time.Hour)
	day := today.Truncate(24 * time.Hour)
	return due.Before(day) && d.Balance.GreaterThan(decimal.Zero)
}

package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/clock"
	"github.com/billforge/billforge/internal/config"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	documentservice "github.com/billforge/billforge/internal/document/service"
	"github.com/billforge/billforge/internal/orgcontext"
	paymentservice "github.com/billforge/billforge/internal/payment/service"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
	scheduleservice "github.com/billforge/billforge/internal/schedule/service"
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

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

type fixtures struct {
	ctx      context.Context
	db       *gorm.DB
	clock    *clock.FakeClock
	docSvc   documentdomain.Service
	schedSvc scheduledomain.Service
}

func setup(t *testing.T) *fixtures {
	t.Helper()
	db := testdb.Open(t)

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC))

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
	schedSvc := scheduleservice.NewService(scheduleservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fc,
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Repo:    repository.ProvideStore[scheduledomain.RecurringSchedule](db),
	})

	ctx := orgcontext.WithOrgID(context.Background(), node.Generate())
	return &fixtures{ctx: ctx, db: db, clock: fc, docSvc: docSvc, schedSvc: schedSvc}
}

// createTemplate creates the document schedules clone from: total 621.
func (f *fixtures) createTemplate(t *testing.T) *documentdomain.Document {
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
		t.Fatalf("create template: %v", err)
	}
	return doc
}

func (f *fixtures) createSchedule(t *testing.T, req scheduledomain.CreateScheduleRequest) *scheduledomain.RecurringSchedule {
	t.Helper()
	sched, err := f.schedSvc.Create(f.ctx, req)
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sched
}

func TestCreateScheduleValidation(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)

	_, err := f.schedSvc.Create(f.ctx, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          "FORTNIGHTLY",
		NextRunDate:        date(2025, 1, 1),
	})
	if !errors.Is(err, scheduledomain.ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}

	_, err = f.schedSvc.Create(f.ctx, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
	})
	if !errors.Is(err, scheduledomain.ErrInvalidNextRunDate) {
		t.Fatalf("expected ErrInvalidNextRunDate, got %v", err)
	}

	_, err = f.schedSvc.Create(f.ctx, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: "2010735548360036353",
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})
	if !errors.Is(err, scheduledomain.ErrTemplateUnavailable) {
		t.Fatalf("expected ErrTemplateUnavailable, got %v", err)
	}

	_, err = f.schedSvc.Create(context.Background(), scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})
	if !errors.Is(err, scheduledomain.ErrInvalidOrganization) {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
}

func TestRunGeneratesDocumentAndAdvances(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	sched := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Processed != 1 || batch.Failed != 0 {
		t.Fatalf("expected 1 processed, got processed=%d failed=%d", batch.Processed, batch.Failed)
	}
	if len(batch.Results) != 1 || batch.Results[0].Status != scheduledomain.RunStatusGenerated {
		t.Fatalf("unexpected results: %+v", batch.Results)
	}
	if batch.Results[0].DocumentID == nil {
		t.Fatal("expected generated document id in result")
	}

	doc, err := f.docSvc.Get(f.ctx, batch.Results[0].DocumentID.String())
	if err != nil {
		t.Fatalf("get generated document: %v", err)
	}
	if doc.Status != documentdomain.DocumentStatusDraft {
		t.Fatalf("expected DRAFT, got %s", doc.Status)
	}
	if !doc.Total.Equal(d("621.00")) || !doc.Balance.Equal(d("621.00")) {
		t.Fatalf("expected frozen totals 621.00, got total=%s balance=%s", doc.Total, doc.Balance)
	}
	if len(doc.LineItems) != 2 {
		t.Fatalf("expected 2 cloned lines, got %d", len(doc.LineItems))
	}
	if !doc.IssueDate.Equal(date(2025, 1, 1)) {
		t.Fatalf("expected issue date 2025-01-01, got %v", doc.IssueDate)
	}
	if doc.DueDate == nil || !doc.DueDate.Equal(date(2025, 1, 31)) {
		t.Fatalf("expected due date 2025-01-31, got %v", doc.DueDate)
	}
	if doc.ID == template.ID {
		t.Fatal("generated document must be a new row")
	}

	after, err := f.schedSvc.Get(f.ctx, sched.ID.String())
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !after.NextRunDate.Equal(date(2025, 1, 8)) {
		t.Fatalf("expected next_run_date 2025-01-08, got %v", after.NextRunDate)
	}
	if after.LastRunDate == nil || !after.LastRunDate.Equal(date(2025, 1, 1)) {
		t.Fatalf("expected last_run_date 2025-01-01, got %v", after.LastRunDate)
	}

	var notifications int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM notifications WHERE schedule_id = ?`, sched.ID,
	).Scan(&notifications).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notifications != 1 {
		t.Fatalf("expected 1 notification, got %d", notifications)
	}

	// Re-running the same day does nothing; the schedule is no longer due.
	again, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.Processed != 0 || len(again.Results) != 0 {
		t.Fatalf("expected idle second run, got %+v", again)
	}
}

func TestRunAutoSend(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyMonthly,
		NextRunDate:        date(2025, 1, 1),
		AutoSend:           true,
	})

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", batch.Processed)
	}

	doc, err := f.docSvc.Get(f.ctx, batch.Results[0].DocumentID.String())
	if err != nil {
		t.Fatalf("get generated document: %v", err)
	}
	if doc.Status != documentdomain.DocumentStatusSent {
		t.Fatalf("expected auto-send to produce SENT, got %s", doc.Status)
	}
	if doc.SentDate == nil {
		t.Fatal("expected sent_date on auto-sent document")
	}
}

func TestRunDeactivatesExpiredSchedule(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	end := date(2024, 12, 31)
	sched := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2024, 12, 25),
		EndDate:            &end,
	})

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Processed != 0 {
		t.Fatalf("expired schedule must not generate, got %d", batch.Processed)
	}
	if len(batch.Results) != 1 || batch.Results[0].Status != scheduledomain.RunStatusSkipped {
		t.Fatalf("expected skipped result, got %+v", batch.Results)
	}

	after, err := f.schedSvc.Get(f.ctx, sched.ID.String())
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if after.IsActive {
		t.Fatal("expected schedule deactivated past end date")
	}
}

func TestRunDeactivatesWhenNextRunPassesEndDate(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	end := date(2025, 1, 5)
	sched := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
		EndDate:            &end,
	})

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The last occurrence inside the window still generates.
	if batch.Processed != 1 {
		t.Fatalf("expected final occurrence to generate, got %d", batch.Processed)
	}

	after, err := f.schedSvc.Get(f.ctx, sched.ID.String())
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if after.IsActive {
		t.Fatal("expected schedule deactivated once next run passes end date")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := setup(t)
	healthyTemplate := f.createTemplate(t)
	brokenTemplate := f.createTemplate(t)

	f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: healthyTemplate.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})
	broken := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: brokenTemplate.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})

	// Pull the template out from under the second schedule.
	if err := f.db.Exec(`DELETE FROM documents WHERE id = ?`, brokenTemplate.ID).Error; err != nil {
		t.Fatalf("delete template: %v", err)
	}

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Processed != 1 || batch.Failed != 1 {
		t.Fatalf("expected 1 processed and 1 failed, got processed=%d failed=%d", batch.Processed, batch.Failed)
	}

	// The failed schedule rolled back and stays due for the next run.
	after, err := f.schedSvc.Get(f.ctx, broken.ID.String())
	if err != nil {
		t.Fatalf("get broken schedule: %v", err)
	}
	if !after.NextRunDate.Equal(date(2025, 1, 1)) || !after.IsActive {
		t.Fatalf("failed schedule must stay due, got next_run=%v active=%v", after.NextRunDate, after.IsActive)
	}
}

func TestPausedScheduleIsSkipped(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	sched := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyWeekly,
		NextRunDate:        date(2025, 1, 1),
	})

	if _, err := f.schedSvc.Pause(f.ctx, sched.ID.String()); err != nil {
		t.Fatalf("pause: %v", err)
	}

	batch, err := f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if batch.Processed != 0 || len(batch.Results) != 0 {
		t.Fatalf("paused schedule must be invisible to the batch, got %+v", batch)
	}

	if _, err := f.schedSvc.Resume(f.ctx, sched.ID.String()); err != nil {
		t.Fatalf("resume: %v", err)
	}

	batch, err = f.schedSvc.Run(f.ctx, date(2025, 1, 1))
	if err != nil {
		t.Fatalf("run after resume: %v", err)
	}
	if batch.Processed != 1 {
		t.Fatalf("expected resumed schedule to generate, got %d", batch.Processed)
	}
}

func TestOverdueScheduleCatchesUpOneRunAtATime(t *testing.T) {
	f := setup(t)
	template := f.createTemplate(t)
	sched := f.createSchedule(t, scheduledomain.CreateScheduleRequest{
		TemplateDocumentID: template.ID.String(),
		Frequency:          scheduledomain.FrequencyDaily,
		NextRunDate:        date(2025, 1, 1),
	})

	// The runner was down for two days; each pass advances from the
	// stored date, not from today.
	today := date(2025, 1, 3)
	for i, wantNext := range []time.Time{date(2025, 1, 2), date(2025, 1, 3)} {
		batch, err := f.schedSvc.Run(f.ctx, today)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if batch.Processed != 1 {
			t.Fatalf("run %d: expected 1 processed, got %d", i+1, batch.Processed)
		}

		after, err := f.schedSvc.Get(f.ctx, sched.ID.String())
		if err != nil {
			t.Fatalf("get schedule: %v", err)
		}
		if !after.NextRunDate.Equal(wantNext) {
			t.Fatalf("run %d: expected next_run_date %v, got %v", i+1, wantNext, after.NextRunDate)
		}
	}

	var generated int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM notifications WHERE schedule_id = ?`, sched.ID,
	).Scan(&generated).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if generated != 2 {
		t.Fatalf("expected 2 generated documents across catch-up runs, got %d", generated)
	}
}

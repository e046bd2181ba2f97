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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/clock"
	"github.com/billforge/billforge/internal/config"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	notificationdomain "github.com/billforge/billforge/internal/notification/domain"
	"github.com/billforge/billforge/internal/orgcontext"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
	"github.com/billforge/billforge/pkg/db/option"
	"github.com/billforge/billforge/pkg/db/pagination"
	"github.com/billforge/billforge/pkg/repository"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    repository.Repository[scheduledomain.RecurringSchedule]
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	repo    repository.Repository[scheduledomain.RecurringSchedule]
}

func NewService(p Params) scheduledomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("schedule.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		repo:    p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req scheduledomain.CreateScheduleRequest) (*scheduledomain.RecurringSchedule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, scheduledomain.ErrInvalidOrganization
	}

	templateID, err := snowflake.ParseString(strings.TrimSpace(req.TemplateDocumentID))
	if err != nil {
		return nil, documentdomain.ErrInvalidDocumentID
	}
	if !req.Frequency.Valid() {
		return nil, scheduledomain.ErrInvalidFrequency
	}
	if req.NextRunDate.IsZero() {
		return nil, scheduledomain.ErrInvalidNextRunDate
	}

	var templateCount int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM documents WHERE id = ? AND org_id = ?`,
		templateID, orgID,
	).Scan(&templateCount).Error; err != nil {
		return nil, err
	}
	if templateCount == 0 {
		return nil, scheduledomain.ErrTemplateUnavailable
	}

	now := s.clock.Now()
	sched := &scheduledomain.RecurringSchedule{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		TemplateDocumentID: templateID,
		Frequency:          req.Frequency,
		NextRunDate:        dateOnly(req.NextRunDate),
		EndDate:            normalizeDate(req.EndDate),
		IsActive:           true,
		AutoSend:           req.AutoSend,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, err
	}

	s.log.Info("schedule created",
		zap.String("schedule_id", sched.ID.String()),
		zap.String("frequency", string(sched.Frequency)),
	)
	return sched, nil
}

func (s *Service) Update(ctx context.Context, id string, req scheduledomain.UpdateScheduleRequest) (*scheduledomain.RecurringSchedule, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Frequency != nil {
		if !req.Frequency.Valid() {
			return nil, scheduledomain.ErrInvalidFrequency
		}
		sched.Frequency = *req.Frequency
	}
	if req.NextRunDate != nil {
		if req.NextRunDate.IsZero() {
			return nil, scheduledomain.ErrInvalidNextRunDate
		}
		sched.NextRunDate = dateOnly(*req.NextRunDate)
	}
	if req.EndDate != nil {
		sched.EndDate = normalizeDate(req.EndDate)
	}
	if req.AutoSend != nil {
		sched.AutoSend = *req.AutoSend
	}
	sched.UpdatedAt = s.clock.Now()

	if err := s.repo.BatchUpdate(ctx, []*scheduledomain.RecurringSchedule{sched}); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) Get(ctx context.Context, id string) (*scheduledomain.RecurringSchedule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, scheduledomain.ErrInvalidOrganization
	}

	scheduleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, scheduledomain.ErrInvalidScheduleID
	}

	sched, err := s.repo.FindOne(ctx, &scheduledomain.RecurringSchedule{ID: scheduleID, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, scheduledomain.ErrScheduleNotFound
	}
	return sched, nil
}

func (s *Service) List(ctx context.Context, req scheduledomain.ListScheduleRequest) ([]scheduledomain.RecurringSchedule, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, scheduledomain.ErrInvalidOrganization
	}

	filter := &scheduledomain.RecurringSchedule{OrgID: orgID}
	options := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  req.PageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "next_run_date": true}}),
	}
	if req.IsActive != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "is_active",
			Operator: option.EQ,
			Value:    *req.IsActive,
		}))
	}

	items, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return nil, err
	}

	schedules := make([]scheduledomain.RecurringSchedule, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		schedules = append(schedules, *item)
	}
	return schedules, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*scheduledomain.RecurringSchedule, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Resume(ctx context.Context, id string) (*scheduledomain.RecurringSchedule, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (*scheduledomain.RecurringSchedule, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.IsActive == active {
		return sched, nil
	}

	sched.IsActive = active
	sched.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE recurring_schedules SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, sched.UpdatedAt, sched.ID,
	).Error; err != nil {
		return nil, err
	}
	return sched, nil
}

// Run claims due schedules with SKIP LOCKED so parallel batch runners
// divide the work, then materializes each schedule in its own
// transaction. A failure rolls that schedule back and leaves it due.
func (s *Service) Run(ctx context.Context, today time.Time) (scheduledomain.BatchResult, error) {
	day := dateOnly(today)
	result := scheduledomain.BatchResult{RunDate: day}

	batchSize := s.billing.Current().BatchSize
	claimed, err := s.claimDueSchedules(ctx, day, batchSize)
	if err != nil {
		return result, err
	}

	for _, scheduleID := range claimed {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		runResult := s.materialize(ctx, scheduleID, day)
		result.Results = append(result.Results, runResult)
		switch runResult.Status {
		case scheduledomain.RunStatusGenerated:
			result.Processed++
		case scheduledomain.RunStatusFailed:
			result.Failed++
			s.log.Warn("schedule materialization failed",
				zap.String("schedule_id", scheduleID.String()),
				zap.String("error", runResult.Error),
			)
		}
	}

	return result, nil
}

func (s *Service) claimDueSchedules(ctx context.Context, day time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []struct {
		ID snowflake.ID
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT id
		 FROM recurring_schedules
		 WHERE is_active = ? AND next_run_date <= ?
		 ORDER BY next_run_date ASC, id ASC
		 FOR UPDATE SKIP LOCKED
		 LIMIT ?`,
		true, day, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// materialize runs one schedule inside a single transaction: re-check
// due-ness under the row lock, clone the template's lines and frozen
// totals into a new document, advance next_run_date, and write the
// notification. Commit-or-nothing keeps re-runs idempotent.
func (s *Service) materialize(ctx context.Context, scheduleID snowflake.ID, day time.Time) scheduledomain.ScheduleRunResult {
	runResult := scheduledomain.ScheduleRunResult{
		ScheduleID: scheduleID,
		Status:     scheduledomain.RunStatusSkipped,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sched scheduledomain.RecurringSchedule
		result := tx.WithContext(ctx).Raw(
			`SELECT * FROM recurring_schedules WHERE id = ? FOR UPDATE`,
			scheduleID,
		).Scan(&sched)
		if result.Error != nil {
			return result.Error
		}
		if sched.ID == 0 {
			return scheduledomain.ErrScheduleNotFound
		}

		// Another runner may have advanced it between claim and lock.
		if !sched.IsActive || sched.NextRunDate.After(day) {
			return nil
		}

		now := s.clock.Now()
		if sched.EndDate != nil && sched.EndDate.Before(day) {
			runResult.Status = scheduledomain.RunStatusSkipped
			return tx.WithContext(ctx).Exec(
				`UPDATE recurring_schedules SET is_active = ?, updated_at = ? WHERE id = ?`,
				false, now, sched.ID,
			).Error
		}

		doc, err := s.cloneTemplate(ctx, tx, &sched, day, now)
		if err != nil {
			return err
		}

		nextRun, err := sched.Frequency.NextRun(sched.NextRunDate)
		if err != nil {
			return err
		}

		active := sched.IsActive
		if sched.EndDate != nil && nextRun.After(*sched.EndDate) {
			active = false
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE recurring_schedules
			 SET next_run_date = ?, last_run_date = ?, is_active = ?, updated_at = ?
			 WHERE id = ?`,
			dateOnly(nextRun), day, active, now, sched.ID,
		).Error; err != nil {
			return err
		}

		notification := &notificationdomain.Notification{
			ID:         s.genID.Generate(),
			OrgID:      sched.OrgID,
			Type:       notificationdomain.NotificationTypeDocumentGenerated,
			DocumentID: doc.ID,
			ScheduleID: sched.ID,
			Payload: datatypes.JSONMap{
				"document_number": doc.DocumentNumber,
				"total":           doc.Total.String(),
				"status":          string(doc.Status),
			},
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(notification).Error; err != nil {
			return err
		}

		docID := doc.ID
		runResult.Status = scheduledomain.RunStatusGenerated
		runResult.DocumentID = &docID
		return nil
	})
	if err != nil {
		runResult.Status = scheduledomain.RunStatusFailed
		runResult.DocumentID = nil
		runResult.Error = err.Error()
	}

	return runResult
}

func (s *Service) cloneTemplate(ctx context.Context, tx *gorm.DB, sched *scheduledomain.RecurringSchedule, day, now time.Time) (*documentdomain.Document, error) {
	var template documentdomain.Document
	result := tx.WithContext(ctx).Raw(
		`SELECT * FROM documents WHERE id = ? AND org_id = ?`,
		sched.TemplateDocumentID, sched.OrgID,
	).Scan(&template)
	if result.Error != nil {
		return nil, result.Error
	}
	if template.ID == 0 {
		return nil, scheduledomain.ErrTemplateUnavailable
	}

	var templateLines []documentdomain.LineItem
	if err := tx.WithContext(ctx).
		Where("document_id = ?", template.ID).
		Order("sort_order ASC").
		Find(&templateLines).Error; err != nil {
		return nil, err
	}

	status := documentdomain.DocumentStatusDraft
	var sentDate *time.Time
	if sched.AutoSend {
		status = documentdomain.DocumentStatusSent
		sentDate = &now
	}

	offsetDays := s.billing.Current().DueDateOffsetDays
	dueDate := day.AddDate(0, 0, offsetDays)

	doc := &documentdomain.Document{
		ID:               s.genID.Generate(),
		OrgID:            sched.OrgID,
		CustomerID:       template.CustomerID,
		Status:           status,
		Discount:         template.Discount,
		IsAmountDiscount: template.IsAmountDiscount,
		TaxRate:          template.TaxRate,
		Subtotal:         template.Subtotal,
		DiscountAmount:   template.DiscountAmount,
		TaxAmount:        template.TaxAmount,
		Total:            template.Total,
		Paid:             decimal.Zero,
		Balance:          template.Total,
		IssueDate:        day,
		DueDate:          &dueDate,
		SentDate:         sentDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	doc.DocumentNumber = fmt.Sprintf("DOC-%s", doc.ID.String())

	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}

	if len(templateLines) > 0 {
		lines := make([]documentdomain.LineItem, 0, len(templateLines))
		for _, line := range templateLines {
			lines = append(lines, documentdomain.LineItem{
				ID:          s.genID.Generate(),
				OrgID:       sched.OrgID,
				DocumentID:  doc.ID,
				Description: line.Description,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Discount:    line.Discount,
				LineTotal:   line.LineTotal,
				SortOrder:   line.SortOrder,
				CreatedAt:   now,
			})
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			return nil, err
		}
		doc.LineItems = lines
	}

	return doc, nil
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := dateOnly(*t)
	return &normalized
}

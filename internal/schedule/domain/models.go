// Package domain contains recurring schedule models and the batch run
// result types.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RecurringSchedule periodically materializes new documents from a
// template document. Dates are date-only values stored in UTC.
type RecurringSchedule struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID              snowflake.ID `json:"org_id" gorm:"not null;index"`
	TemplateDocumentID snowflake.ID `json:"template_document_id" gorm:"not null;index"`
	Frequency          Frequency    `json:"frequency" gorm:"type:text;not null"`
	NextRunDate        time.Time    `json:"next_run_date" gorm:"not null;index"`
	LastRunDate        *time.Time   `json:"last_run_date"`
	EndDate            *time.Time   `json:"end_date"`
	IsActive           bool         `json:"is_active" gorm:"not null;default:true;index"`
	AutoSend           bool         `json:"auto_send" gorm:"not null;default:false"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RecurringSchedule) TableName() string { return "recurring_schedules" }

// RunStatus describes the outcome for one schedule in a batch run.
type RunStatus string

const (
	RunStatusGenerated RunStatus = "generated"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusFailed    RunStatus = "failed"
)

// ScheduleRunResult is the per-schedule entry in a batch result.
type ScheduleRunResult struct {
	ScheduleID snowflake.ID  `json:"schedule_id"`
	Status     RunStatus     `json:"status"`
	DocumentID *snowflake.ID `json:"document_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BatchResult aggregates one batch run. A failed schedule never aborts
// the batch; it stays due and is reported here.
type BatchResult struct {
	RunDate   time.Time           `json:"run_date"`
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
	Results   []ScheduleRunResult `json:"results"`
}

type CreateScheduleRequest struct {
	TemplateDocumentID string     `json:"template_document_id"`
	Frequency          Frequency  `json:"frequency"`
	NextRunDate        time.Time  `json:"next_run_date"`
	EndDate            *time.Time `json:"end_date"`
	AutoSend           bool       `json:"auto_send"`
}

type UpdateScheduleRequest struct {
	Frequency   *Frequency `json:"frequency"`
	NextRunDate *time.Time `json:"next_run_date"`
	EndDate     *time.Time `json:"end_date"`
	AutoSend    *bool      `json:"auto_send"`
}

type ListScheduleRequest struct {
	IsActive  *bool
	PageToken string
	PageSize  int
}

type Service interface {
	Create(ctx context.Context, req CreateScheduleRequest) (*RecurringSchedule, error)
	Update(ctx context.Context, id string, req UpdateScheduleRequest) (*RecurringSchedule, error)
	Get(ctx context.Context, id string) (*RecurringSchedule, error)
	List(ctx context.Context, req ListScheduleRequest) ([]RecurringSchedule, error)
	Pause(ctx context.Context, id string) (*RecurringSchedule, error)
	Resume(ctx context.Context, id string) (*RecurringSchedule, error)

	// Run claims every due schedule and materializes one document per
	// schedule, each in its own transaction. today is date-only.
	Run(ctx context.Context, today time.Time) (BatchResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrScheduleNotFound    = errors.New("schedule_not_found")
	ErrInvalidScheduleID   = errors.New("invalid_schedule_id")
	ErrInvalidFrequency    = errors.New("invalid_frequency")
	ErrInvalidNextRunDate  = errors.New("invalid_next_run_date")
	ErrTemplateUnavailable = errors.New("template_unavailable")
)

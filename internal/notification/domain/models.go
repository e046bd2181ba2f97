// Package domain contains the notification records written when the
// engine generates documents. Rows are written in the same transaction
// as the document so a delivery worker can pick them up later.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationTypeDocumentGenerated NotificationType = "document_generated"
)

type Notification struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID      `json:"org_id" gorm:"not null;index"`
	Type       NotificationType  `json:"type" gorm:"type:text;not null"`
	DocumentID snowflake.ID      `json:"document_id" gorm:"not null;index"`
	ScheduleID snowflake.ID      `json:"schedule_id" gorm:"not null;index"`
	Payload    datatypes.JSONMap `json:"payload" gorm:"type:jsonb;not null;default:'{}'"`
	SentAt     *time.Time        `json:"sent_at"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

package model

import "time"

// Outbox 状态
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	// OutboxFailed 超过最大重试次数，不再投递
	OutboxFailed     = "failed"
)

// MessageOutbox 消息写入事件外发盒：与消息同一事务落地，由 relay 投递到实时 feed
type MessageOutbox struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	MessageID   string     `gorm:"type:varchar(36);uniqueIndex;not null"`
	Status      string     `gorm:"type:varchar(16);index:idx_outbox_status_created;not null"`
	Attempts    int        `gorm:"not null;default:0"`
	CreatedAt   time.Time  `gorm:"index:idx_outbox_status_created"`
	ClaimedAt   *time.Time `gorm:"index"`
	ProcessedAt *time.Time
}

func (MessageOutbox) TableName() string { return "message_outbox" }

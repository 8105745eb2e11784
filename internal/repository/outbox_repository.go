package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Vasilion/UnyX-Social/internal/model"
)

// OutboxRepository 消息 outbox 的领取与确认
type OutboxRepository interface {
	// Claim 领取一批 pending 记录并置为 processing
	Claim(ctx context.Context, limit int) ([]model.MessageOutbox, error)

	// MarkDone 标记投递完成
	MarkDone(ctx context.Context, id string) error

	// Release 投递失败，放回 pending 并累加 attempts
	Release(ctx context.Context, id string) error

	// Fail 放弃投递：置为 failed 并累加 attempts
	Fail(ctx context.Context, id string) error

	// Reclaim 把 claimed_at 早于 before 的 processing 记录放回 pending
	Reclaim(ctx context.Context, before time.Time) (int64, error)

	// Purge 删除 processed_at 早于 before 的 done / failed 记录
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]model.MessageOutbox, error) {
	var batch []model.MessageOutbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ?", model.OutboxPending).
			Order("created_at").
			Limit(limit)
		// 多实例 relay 互不阻塞；sqlite 单写者无需加锁
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		now := time.Now().UTC()
		return tx.Model(&model.MessageOutbox{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.MessageOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now}).Error
}

func (r *outboxRepository) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.MessageOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.OutboxPending,
			"claimed_at": nil,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

func (r *outboxRepository) Fail(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&model.MessageOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.OutboxFailed,
			"processed_at": now,
			"attempts":     gorm.Expr("attempts + 1"),
		}).Error
}

func (r *outboxRepository) Reclaim(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	res := r.db.WithContext(ctx).Model(&model.MessageOutbox{}).
		Where("status = ? AND claimed_at < ?", model.OutboxProcessing, before).
		Updates(map[string]any{"status": model.OutboxPending, "claimed_at": nil})
	return res.RowsAffected, res.Error
}

func (r *outboxRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	res := r.db.WithContext(ctx).
		Where("status IN ? AND processed_at < ?", []string{model.OutboxDone, model.OutboxFailed}, before).
		Delete(&model.MessageOutbox{})
	return res.RowsAffected, res.Error
}

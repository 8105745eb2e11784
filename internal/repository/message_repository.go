package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/internal/model"
)

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Create 写入消息与 outbox 事件（同一事务）；ID 为空时生成，CreatedAt 由存储层分配
	Create(ctx context.Context, msg *model.Message) error

	// ListThread 查询商品下 userA 与 userB 之间的全部消息，按时间升序
	ListThread(ctx context.Context, itemID, userA, userB string) ([]*model.Message, error)

	// ListByParticipant 查询用户作为发送方或接收方的全部消息
	ListByParticipant(ctx context.Context, userID string) ([]*model.Message, error)

	// GetByIDs 按 ID 批量查询
	GetByIDs(ctx context.Context, ids []string) ([]*model.Message, error)

	// MarkRead 把 receiver=receiverID 且未读的消息置为已读，返回实际更新条数
	MarkRead(ctx context.Context, ids []string, receiverID string) (int64, error)

	// CountUnread 统计发给 receiverID 的未读消息
	CountUnread(ctx context.Context, receiverID string) (int64, error)
}

type messageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, now: time.Now}
}

// pairScope 限定为 (a,b) 这一对参与者，与方向无关
func pairScope(itemID, a, b string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("item_id = ?", itemID).
			Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)
	}
}

// lockConversation serialises sends within one conversation until the
// transaction ends. sqlite already serialises writers.
func lockConversation(tx *gorm.DB, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 会话内时间戳单调：不早于该会话最后一条消息
		if err := lockConversation(tx, msg.ConversationKey()); err != nil {
			return err
		}
		ts := r.now().UTC().Truncate(time.Microsecond)
		var last model.Message
		if err := tx.Scopes(pairScope(msg.ItemID, msg.SenderID, msg.ReceiverID)).
			Order("created_at DESC").
			Limit(1).
			Find(&last).Error; err != nil {
			return err
		}
		if last.ID != "" && !ts.After(last.CreatedAt) {
			ts = last.CreatedAt.UTC().Add(time.Microsecond)
		}
		msg.CreatedAt = ts
		msg.Read = false

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		out := &model.MessageOutbox{
			ID:        uuid.New().String(),
			MessageID: msg.ID,
			Status:    model.OutboxPending,
			CreatedAt: ts,
		}
		return tx.Create(out).Error
	})
}

func (r *messageRepository) ListThread(ctx context.Context, itemID, userA, userB string) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Scopes(pairScope(itemID, userA, userB)).
		Order("created_at ASC").
		Order("id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) ListByParticipant(ctx context.Context, userID string) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Find(&res).Error
	return res, err
}

func (r *messageRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Message
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *messageRepository) MarkRead(ctx context.Context, ids []string, receiverID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id IN ?", ids).
		Where(map[string]interface{}{"receiver_id": receiverID, "read": false}).
		Update("read", true)
	return res.RowsAffected, res.Error
}

func (r *messageRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where(map[string]interface{}{"receiver_id": receiverID, "read": false}).
		Count(&cnt).Error
	return cnt, err
}

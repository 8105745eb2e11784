package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/apperr"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// MessageService 消息存取层：发送、历史、已读
type MessageService interface {
	// Send 持久化一条消息；时间戳由存储层分配，消息与 outbox 事件同一事务写入
	Send(ctx context.Context, caller identity.Identity, itemID, receiverID, body string) (*model.Message, error)

	// History 返回 viewer 与 counterpart 在该商品下的全部消息，按 (created_at, id) 升序
	History(ctx context.Context, caller identity.Identity, itemID, viewerID, counterpartID string) ([]*model.Message, error)

	// MarkRead 只把 receiver=viewer 的未读消息置为已读；其它 id 记录日志后跳过
	MarkRead(ctx context.Context, caller identity.Identity, messageIDs []string, viewerID string) error
}

type messageService struct {
	msgs    repository.MessageRepository
	items   repository.ItemRepository
	timeout time.Duration
}

func NewMessageService(msgs repository.MessageRepository, items repository.ItemRepository, storeTimeout time.Duration) MessageService {
	return &messageService{msgs: msgs, items: items, timeout: storeTimeout}
}

func (s *messageService) Send(ctx context.Context, caller identity.Identity, itemID, receiverID, body string) (*model.Message, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	switch {
	case itemID == "":
		return nil, apperr.Invalid("item_id", "required")
	case receiverID == "":
		return nil, apperr.Invalid("receiver_id", "required")
	case strings.TrimSpace(body) == "":
		return nil, apperr.Invalid("message", "must not be empty")
	case receiverID == caller.UserID:
		return nil, apperr.Invalid("receiver_id", "cannot message yourself")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	titles, err := s.items.Titles(ctx, []string{itemID})
	if err != nil {
		return nil, apperr.Store("send", err)
	}
	if _, ok := titles[itemID]; !ok {
		return nil, apperr.Invalid("item_id", "item does not exist")
	}

	msg := &model.Message{
		ItemID:     itemID,
		SenderID:   caller.UserID,
		ReceiverID: receiverID,
		Body:       body,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, apperr.Store("send", err)
	}
	logger.Debug("message stored",
		zap.String("message_id", msg.ID),
		zap.String("conversation", msg.ConversationKey()))
	return msg, nil
}

func (s *messageService) History(ctx context.Context, caller identity.Identity, itemID, viewerID, counterpartID string) ([]*model.Message, error) {
	if err := caller.RequireUser(viewerID); err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, apperr.Invalid("item_id", "required")
	}
	if counterpartID == "" {
		return nil, apperr.Invalid("counterpart_id", "required")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.msgs.ListThread(ctx, itemID, viewerID, counterpartID)
	if err != nil {
		return nil, apperr.Store("history", err)
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

func (s *messageService) MarkRead(ctx context.Context, caller identity.Identity, messageIDs []string, viewerID string) error {
	if err := caller.RequireUser(viewerID); err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.msgs.GetByIDs(ctx, messageIDs)
	if err != nil {
		return apperr.Store("mark read", err)
	}
	byID := make(map[string]*model.Message, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}

	eligible := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		m, ok := byID[id]
		switch {
		case !ok:
			logger.Debug("mark read: unknown message", zap.String("message_id", id))
		case m.ReceiverID != viewerID:
			logger.Warn("mark read: message not addressed to viewer",
				zap.String("message_id", id),
				zap.String("viewer_id", viewerID))
		case !m.Read:
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	// receiver/read 条件在 UPDATE 中再次过滤
	n, err := s.msgs.MarkRead(ctx, eligible, viewerID)
	if err != nil {
		return apperr.Store("mark read", err)
	}
	logger.Debug("messages marked read", zap.String("viewer_id", viewerID), zap.Int64("count", n))
	return nil
}

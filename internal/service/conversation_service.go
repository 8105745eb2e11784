package service

import (
	"context"
	"sort"
	"time"

	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/apperr"
)

// ConversationService 会话聚合：由消息派生会话列表
type ConversationService interface {
	ListConversations(ctx context.Context, caller identity.Identity, viewerID string) ([]*model.Conversation, error)

	// UnreadTotal 发给 caller 的未读消息总数
	UnreadTotal(ctx context.Context, caller identity.Identity) (int64, error)
}

type conversationService struct {
	msgs     repository.MessageRepository
	items    repository.ItemRepository
	profiles cache.ProfileLoader
	timeout  time.Duration
}

func NewConversationService(msgs repository.MessageRepository, items repository.ItemRepository, profiles cache.ProfileLoader, storeTimeout time.Duration) ConversationService {
	return &conversationService{msgs: msgs, items: items, profiles: profiles, timeout: storeTimeout}
}

// AggregateConversations groups msgs into conversations as seen by viewerID.
// Messages not involving the viewer are ignored. The result is ordered by the
// latest message descending, ties by conversation key ascending.
func AggregateConversations(viewerID string, msgs []*model.Message) []*model.Conversation {
	byKey := make(map[string]*model.Conversation)
	latest := make(map[string]*model.Message)

	for _, m := range msgs {
		if m == nil || !m.Involves(viewerID) {
			continue
		}
		key := m.ConversationKey()
		conv, ok := byKey[key]
		if !ok {
			conv = &model.Conversation{
				ID:            key,
				ItemID:        m.ItemID,
				CounterpartID: m.Counterpart(viewerID),
			}
			byKey[key] = conv
		}
		if cur := latest[key]; cur == nil || cur.Before(m) {
			latest[key] = m
			conv.LastMessage = m.Body
			conv.LastMessageID = m.ID
			conv.LastSenderID = m.SenderID
			conv.LastMessageAt = m.CreatedAt
		}
		if m.ReceiverID == viewerID && !m.Read {
			conv.UnreadCount++
		}
	}

	res := make([]*model.Conversation, 0, len(byKey))
	for _, c := range byKey {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := latest[res[i].ID], latest[res[j].ID]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res
}

func (s *conversationService) ListConversations(ctx context.Context, caller identity.Identity, viewerID string) ([]*model.Conversation, error) {
	if err := caller.RequireUser(viewerID); err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := s.msgs.ListByParticipant(ctx, viewerID)
	if err != nil {
		return nil, apperr.Store("list conversations", err)
	}
	convs := AggregateConversations(viewerID, msgs)
	if len(convs) == 0 {
		return convs, nil
	}

	itemIDs := make([]string, 0, len(convs))
	userIDs := make([]string, 0, len(convs))
	seenItem := make(map[string]struct{}, len(convs))
	seenUser := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		if _, ok := seenItem[c.ItemID]; !ok {
			seenItem[c.ItemID] = struct{}{}
			itemIDs = append(itemIDs, c.ItemID)
		}
		if _, ok := seenUser[c.CounterpartID]; !ok {
			seenUser[c.CounterpartID] = struct{}{}
			userIDs = append(userIDs, c.CounterpartID)
		}
	}

	titles, err := s.items.Titles(ctx, itemIDs)
	if err != nil {
		return nil, apperr.Store("list conversations", err)
	}
	profiles, err := s.profiles.Load(ctx, userIDs)
	if err != nil {
		return nil, apperr.Store("list conversations", err)
	}

	for _, c := range convs {
		c.ItemTitle = titles[c.ItemID]
		if p, ok := profiles[c.CounterpartID]; ok {
			c.CounterpartUsername = p.Username
			c.CounterpartAvatarURL = p.AvatarURL
		}
	}
	return convs, nil
}

func (s *conversationService) UnreadTotal(ctx context.Context, caller identity.Identity) (int64, error) {
	if err := caller.Require(); err != nil {
		return 0, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.msgs.CountUnread(ctx, caller.UserID)
	if err != nil {
		return 0, apperr.Store("unread total", err)
	}
	return n, nil
}

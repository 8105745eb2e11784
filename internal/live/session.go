package live

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// ErrSessionClosed is returned by commands on a closed session.
var ErrSessionClosed = errors.New("live: session closed")

// UpdateKind 推送给前端的更新类型
type UpdateKind string

const (
	UpdateConversations UpdateKind = "conversations"
	UpdateThread        UpdateKind = "thread"
	UpdateMessage       UpdateKind = "message"
)

// Update is one change to a session's view.
type Update struct {
	Kind          UpdateKind            `json:"type"`
	Conversations []*model.Conversation `json:"conversations,omitempty"`
	Thread        []*model.Message      `json:"thread,omitempty"`
	Message       *model.Message        `json:"message,omitempty"`
	// Position is the index of Message in the open thread.
	Position int `json:"position"`
}

// Session is one viewer's live view: the conversation list and, optionally,
// one open thread. Feed events and commands are applied one at a time.
type Session struct {
	ID string

	bridge *Bridge
	caller identity.Identity
	userID string
	sub    feed.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	updates chan Update

	mu     sync.Mutex
	closed bool
	open   *model.ConversationRef
	thread []*model.Message
	seen   map[string]struct{}
	convs  []*model.Conversation
}

func newSession(b *Bridge, caller identity.Identity, sub feed.Subscription) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:      uuid.NewString(),
		bridge:  b,
		caller:  caller,
		userID:  caller.UserID,
		sub:     sub,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Update, b.buffer),
	}
}

// Updates is closed after Close returns.
func (s *Session) Updates() <-chan Update { return s.updates }

func (s *Session) UserID() string { return s.userID }

func (s *Session) start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range s.sub.C() {
			s.handle(msg)
		}
	}()
}

// handle applies one feed event.
func (s *Session) handle(m *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || m == nil || !m.Involves(s.userID) {
		return
	}

	if s.open != nil && s.open.Matches(s.userID, m) {
		if pos, ok := s.insert(m); ok {
			entry := s.thread[pos]
			if entry.ReceiverID == s.userID && !entry.Read {
				// 正在查看的会话，到达即已读
				if err := s.bridge.msgs.MarkRead(s.ctx, s.caller, []string{entry.ID}, s.userID); err != nil {
					logger.Warn("live: mark read on arrival failed",
						zap.String("session", s.ID),
						zap.String("message_id", entry.ID),
						zap.Error(err))
				} else {
					entry.Read = true
				}
			}
			s.emit(Update{Kind: UpdateMessage, Message: cloneMessage(entry), Position: pos})
		}
	}

	if err := s.refresh(s.ctx); err != nil && s.ctx.Err() == nil {
		logger.Warn("live: refresh conversations failed", zap.String("session", s.ID), zap.Error(err))
	}
}

// insert places m in the open thread ordered by (created_at, id). Duplicates
// are ignored. Caller holds s.mu.
func (s *Session) insert(m *model.Message) (int, bool) {
	if _, dup := s.seen[m.ID]; dup {
		return 0, false
	}
	cp := cloneMessage(m)
	pos := sort.Search(len(s.thread), func(i int) bool { return cp.Before(s.thread[i]) })
	s.thread = append(s.thread, nil)
	copy(s.thread[pos+1:], s.thread[pos:])
	s.thread[pos] = cp
	s.seen[cp.ID] = struct{}{}
	return pos, true
}

// refresh re-runs the conversation list. Caller holds s.mu.
func (s *Session) refresh(ctx context.Context) error {
	convs, err := s.bridge.convs.ListConversations(ctx, s.caller, s.userID)
	if err != nil {
		return err
	}
	s.convs = convs
	s.emit(Update{Kind: UpdateConversations, Conversations: cloneConversations(convs)})
	return nil
}

// emit never blocks; a full buffer drops the update. Caller holds s.mu.
func (s *Session) emit(u Update) {
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
		logger.Warn("live: session buffer full, dropping update",
			zap.String("session", s.ID),
			zap.String("kind", string(u.Kind)))
	}
}

// Open loads the thread with counterpartID about itemID, marks the viewer's
// unread messages in it read and makes it the open conversation.
func (s *Session) Open(ctx context.Context, itemID, counterpartID string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	history, err := s.bridge.msgs.History(ctx, s.caller, itemID, s.userID, counterpartID)
	if err != nil {
		return nil, err
	}

	s.open = &model.ConversationRef{ItemID: itemID, CounterpartID: counterpartID}
	s.thread = make([]*model.Message, 0, len(history))
	s.seen = make(map[string]struct{}, len(history))
	var unread []string
	for _, m := range history {
		s.thread = append(s.thread, cloneMessage(m))
		s.seen[m.ID] = struct{}{}
		if m.ReceiverID == s.userID && !m.Read {
			unread = append(unread, m.ID)
		}
	}

	if len(unread) > 0 {
		if err := s.bridge.msgs.MarkRead(ctx, s.caller, unread, s.userID); err != nil {
			logger.Warn("live: mark thread read failed", zap.String("session", s.ID), zap.Error(err))
		} else {
			for _, m := range s.thread {
				if m.ReceiverID == s.userID {
					m.Read = true
				}
			}
		}
	}

	thread := cloneThread(s.thread)
	s.emit(Update{Kind: UpdateThread, Thread: cloneThread(s.thread)})
	if err := s.refresh(ctx); err != nil {
		logger.Warn("live: refresh conversations failed", zap.String("session", s.ID), zap.Error(err))
	}
	return thread, nil
}

// CloseConversation clears the open conversation; the list stays live.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = nil
	s.thread = nil
	s.seen = nil
}

// OpenConversation returns the open conversation, if any.
func (s *Session) OpenConversation() (model.ConversationRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return model.ConversationRef{}, false
	}
	return *s.open, true
}

// Thread returns a snapshot of the open thread.
func (s *Session) Thread() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneThread(s.thread)
}

// Conversations returns the last loaded conversation list.
func (s *Session) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConversations(s.convs)
}

// Close releases the subscription and stops the session. No update is
// delivered after Close returns. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = s.sub.Close()
		s.wg.Wait()
		close(s.updates)
		s.bridge.remove(s)
		logger.Debug("live session closed", zap.String("session", s.ID))
	})
	return err
}

func cloneMessage(m *model.Message) *model.Message {
	cp := *m
	return &cp
}

func cloneThread(thread []*model.Message) []*model.Message {
	if thread == nil {
		return nil
	}
	res := make([]*model.Message, len(thread))
	for i, m := range thread {
		res[i] = cloneMessage(m)
	}
	return res
}

func cloneConversations(convs []*model.Conversation) []*model.Conversation {
	res := make([]*model.Conversation, len(convs))
	for i, c := range convs {
		cp := *c
		res[i] = &cp
	}
	return res
}

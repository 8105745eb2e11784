// Package live delivers newly inserted messages to viewer sessions without
// polling. Each session owns its own feed subscription.
package live

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/service"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// Bridge opens sessions on top of the feed and the message services.
type Bridge struct {
	feed   feed.Feed
	msgs   service.MessageService
	convs  service.ConversationService
	buffer int

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewBridge(f feed.Feed, msgs service.MessageService, convs service.ConversationService, buffer int) *Bridge {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bridge{
		feed:     f,
		msgs:     msgs,
		convs:    convs,
		buffer:   buffer,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for the caller: it subscribes to the feed, loads the
// conversation list (sent as the first update) and starts applying events.
// ctx bounds the setup only.
func (b *Bridge) Open(ctx context.Context, caller identity.Identity) (*Session, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	// 先订阅再加载列表，避免两者之间的事件丢失
	sub, err := b.feed.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	s := newSession(b, caller, sub)
	s.mu.Lock()
	err = s.refresh(ctx)
	s.mu.Unlock()
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	b.mu.Lock()
	b.sessions[s.ID] = s
	b.mu.Unlock()

	s.start()
	logger.Debug("live session opened", zap.String("session", s.ID), zap.String("user_id", s.userID))
	return s, nil
}

func (b *Bridge) remove(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s.ID)
	b.mu.Unlock()
}

// SessionCount returns the number of open sessions.
func (b *Bridge) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Shutdown closes every open session.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	open := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		open = append(open, s)
	}
	b.mu.Unlock()
	for _, s := range open {
		_ = s.Close()
	}
}

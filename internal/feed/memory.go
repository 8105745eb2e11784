package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// InMemory fans messages out to in-process subscribers. A subscriber whose
// buffer is full misses the event; the relay's at-least-once contract does
// not extend past this process.
type InMemory struct {
	mu     sync.RWMutex
	subs   map[string]*memSub
	buffer int
}

func NewInMemory(buffer int) *InMemory {
	if buffer <= 0 {
		buffer = 256
	}
	return &InMemory{subs: make(map[string]*memSub), buffer: buffer}
}

type memSub struct {
	id   string
	ch   chan *model.Message
	feed *InMemory
	once sync.Once
}

func (s *memSub) C() <-chan *model.Message { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		close(s.ch)
		s.feed.mu.Unlock()
	})
	return nil
}

func (f *InMemory) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memSub{id: uuid.NewString(), ch: make(chan *model.Message, f.buffer), feed: f}
	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()
	return sub, nil
}

// Publish never blocks on a slow subscriber.
func (f *InMemory) Publish(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		// 每个订阅者拿到独立副本
		cp := *msg
		select {
		case sub.ch <- &cp:
		default:
			logger.Warn("feed subscriber buffer full, dropping event",
				zap.String("subscription", sub.id),
				zap.String("message_id", msg.ID))
		}
	}
	return nil
}

// SubscriberCount returns the number of open subscriptions.
func (f *InMemory) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

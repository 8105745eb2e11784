package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// Redis carries the feed over a redis pub/sub channel so every API instance
// sees every insert.
type Redis struct {
	client  *redis.Client
	channel string
	buffer  int
}

func NewRedis(client *redis.Client, channel string, buffer int) *Redis {
	if channel == "" {
		channel = "marketplace_messages:insert"
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Redis{client: client, channel: channel, buffer: buffer}
}

func (f *Redis) Publish(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *Redis) Subscribe(ctx context.Context) (Subscription, error) {
	ps := f.client.Subscribe(ctx, f.channel)
	// 等待订阅确认，避免确认前发布的消息丢失
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSub{
		ps:   ps,
		out:  make(chan *model.Message, f.buffer),
		done: make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.forward(ps.Channel())
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan *model.Message
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

func (s *redisSub) C() <-chan *model.Message { return s.out }

func (s *redisSub) forward(in <-chan *redis.Message) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var msg model.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				logger.Warn("feed: undecodable payload", zap.String("channel", raw.Channel), zap.Error(err))
				continue
			}
			select {
			case s.out <- &msg:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		s.wg.Wait()
		close(s.out)
	})
	return s.err
}

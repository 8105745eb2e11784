// Package relay moves committed messages from the outbox onto the live feed.
package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// Worker 从 outbox 领取事件并发布到 feed；失败放回 pending，至少一次投递
type Worker struct {
	outbox       repository.OutboxRepository
	msgs         repository.MessageRepository
	feed         feed.Feed
	workers      int
	claimLimit   int
	pollInterval time.Duration
	maxAttempts  int
	metricsCh    chan time.Duration // outbox -> published latency
}

func NewWorker(outbox repository.OutboxRepository, msgs repository.MessageRepository, f feed.Feed, workers, claimLimit int, pollInterval time.Duration, maxAttempts int) *Worker {
	if workers <= 0 {
		workers = 2
	}
	if claimLimit <= 0 {
		claimLimit = 128
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		outbox:       outbox,
		msgs:         msgs,
		feed:         f,
		workers:      workers,
		claimLimit:   claimLimit,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		metricsCh:    make(chan time.Duration, 65536),
	}
}

// Metrics 发布延迟采样；满了直接丢弃
func (w *Worker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询 outbox；返回停止函数，等待 worker 退出或 ctx 结束。
func (w *Worker) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 一批满了就立刻再取，直到取空
			for {
				n, err := w.ProcessOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						logger.Warn("relay: process outbox failed", zap.Error(err))
					}
					break
				}
				if n < w.claimLimit {
					break
				}
			}
		}
	}
}

// ProcessOnce claims one batch and publishes it. It returns the batch size.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.Claim(ctx, w.claimLimit)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	ids := make([]string, len(batch))
	for i, b := range batch {
		ids[i] = b.MessageID
	}
	msgs, err := w.msgs.GetByIDs(ctx, ids)
	if err != nil {
		w.releaseAll(ctx, batch)
		return 0, err
	}
	byID := make(map[string]*model.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	for _, b := range batch {
		msg, ok := byID[b.MessageID]
		if !ok {
			// 商品已删除，消息随之删除
			logger.Debug("relay: message gone, skipping", zap.String("message_id", b.MessageID))
			w.markDone(ctx, b)
			continue
		}
		if err := w.feed.Publish(ctx, msg); err != nil {
			logger.Warn("relay: publish failed",
				zap.String("outbox_id", b.ID),
				zap.String("message_id", b.MessageID),
				zap.Int("attempts", b.Attempts+1),
				zap.Error(err))
			w.retryOrFail(ctx, b)
			continue
		}
		w.markDone(ctx, b)
		if !b.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(b.CreatedAt):
			default:
			}
		}
	}
	return len(batch), nil
}

func (w *Worker) markDone(ctx context.Context, b model.MessageOutbox) {
	// 失败的行由 Reclaim 放回 pending，重复发布由消费方去重
	if err := w.outbox.MarkDone(ctx, b.ID); err != nil {
		logger.Error("relay: mark done failed", zap.String("outbox_id", b.ID), zap.Error(err))
	}
}

// retryOrFail 放回 pending；达到 maxAttempts 后置为 failed
func (w *Worker) retryOrFail(ctx context.Context, b model.MessageOutbox) {
	if b.Attempts+1 >= w.maxAttempts {
		logger.Error("relay: giving up on message",
			zap.String("outbox_id", b.ID),
			zap.String("message_id", b.MessageID),
			zap.Int("attempts", b.Attempts+1))
		if err := w.outbox.Fail(ctx, b.ID); err != nil {
			logger.Error("relay: mark failed failed", zap.String("outbox_id", b.ID), zap.Error(err))
		}
		return
	}
	if err := w.outbox.Release(ctx, b.ID); err != nil {
		logger.Error("relay: release failed", zap.String("outbox_id", b.ID), zap.Error(err))
	}
}

func (w *Worker) releaseAll(ctx context.Context, batch []model.MessageOutbox) {
	for _, b := range batch {
		if err := w.outbox.Release(ctx, b.ID); err != nil {
			logger.Error("relay: release failed", zap.String("outbox_id", b.ID), zap.Error(err))
		}
	}
}

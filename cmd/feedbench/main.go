package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/app"
	"github.com/Vasilion/UnyX-Social/internal/identity"
	"github.com/Vasilion/UnyX-Social/internal/live"
	"github.com/Vasilion/UnyX-Social/internal/model"
)

// feedbench: send -> outbox -> relay -> feed -> live session 端到端延迟
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer a.Close(context.Background())
	if err := a.Start(); err != nil {
		panic(err)
	}

	REPEAT := 200
	if s := os.Getenv("REPEAT"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			REPEAT = v
		}
	}

	run := uuid.NewString()[:8]
	seller, buyer := "bench-seller-"+run, "bench-buyer-"+run
	item := &model.MarketplaceItem{
		ID: uuid.NewString(), UserID: seller, Title: "feedbench " + run, Price: 1,
		Category: "bench", Condition: "new", Description: "feedbench", Location: "local",
	}
	if err := a.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(item).Error; err != nil {
		panic(err)
	}

	sess, err := a.Bridge.Open(ctx, identity.User(seller))
	if err != nil {
		panic(err)
	}
	defer sess.Close()
	if _, err := sess.Open(ctx, item.ID, buyer); err != nil {
		panic(err)
	}

	lat := make([]time.Duration, 0, REPEAT)
	lost := 0
	for i := 0; i < REPEAT; i++ {
		st := time.Now()
		msg, err := a.Messages.Send(ctx, identity.User(buyer), item.ID, seller, fmt.Sprintf("bench %d", i))
		if err != nil {
			panic(err)
		}
		if waitFor(sess, msg.ID, 5*time.Second) {
			lat = append(lat, time.Since(st))
		} else {
			lost++
		}
	}

	// relay 侧：outbox 写入 -> 发布
	var relayLat []time.Duration
	for done := false; !done; {
		select {
		case d := <-a.Relay.Metrics():
			relayLat = append(relayLat, d)
		default:
			done = true
		}
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(float64(len(xs)) * p)
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}
	avg := func(vs []time.Duration) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		var sum time.Duration
		for _, d := range vs {
			sum += d
		}
		return sum / time.Duration(len(vs))
	}

	fmt.Printf("FEED=%s REPEAT=%d RELAY_WORKERS=%d POLL=%v\n", cfg.Messaging.Feed, REPEAT, cfg.Messaging.RelayWorkers, cfg.Messaging.RelayPoll)
	fmt.Printf("Send->live: avg=%v p50=%v p95=%v p99=%v lost=%d\n", avg(lat), pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99), lost)
	fmt.Printf("Outbox->feed: avg=%v p95=%v p99=%v samples=%d\n", avg(relayLat), pct(relayLat, 0.95), pct(relayLat, 0.99), len(relayLat))
}

func waitFor(sess *live.Session, id string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case u, ok := <-sess.Updates():
			if !ok {
				return false
			}
			if u.Kind == live.UpdateMessage && u.Message != nil && u.Message.ID == id {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

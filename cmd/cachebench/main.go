package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/model"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/database"
)

// cachebench: 会话列表对端资料加载，无缓存 vs redis cache-aside
func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	db := must(database.InitDB(cfg))
	defer database.Close(db)
	mustDo(database.Migrate(db))

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}

	const (
		profileCount = 20000
		requests     = 5000
		ttl          = 10 * time.Minute
	)

	fmt.Println("Setting up profiles...")
	run := uuid.NewString()[:8]
	ids := make([]string, profileCount)
	rows := make([]model.Profile, profileCount)
	for i := range rows {
		ids[i] = fmt.Sprintf("bench-%s-%05d", run, i)
		rows[i] = model.Profile{ID: ids[i], Username: fmt.Sprintf("rider_%d", i)}
	}
	mustDo(db.CreateInBatches(&rows, 1000).Error)
	defer db.Where("id LIKE ?", "bench-"+run+"-%").Delete(&model.Profile{})

	reqs := makeRequests(ids, requests)
	repo := repository.NewProfileRepository(db)

	noCache := runScenario(ctx, cache.NewProfileCache(repo, nil, ttl), reqs, false)
	mustDo(client.FlushDB(ctx).Err())
	cold := runScenario(ctx, cache.NewProfileCache(repo, client, ttl), reqs, false)
	warm := runScenario(ctx, cache.NewProfileCache(repo, client, ttl), reqs, true)

	info, _ := client.Info(ctx, "memory").Result()
	fmt.Printf("\nConversation counterpart lookup (%d req, %d profiles, PostgreSQL + Redis)\n", requests, profileCount)
	for _, r := range []struct {
		name string
		res  scenarioResult
	}{{"No cache", noCache}, {"Redis cold", cold}, {"Redis warm", warm}} {
		fmt.Printf("%-12s avg=%v p95=%v p99=%v db_loads=%d\n",
			r.name, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99), r.res.dbLoads)
	}
	fmt.Printf("redis used_memory=%s\n", usedMemory(info))
}

type scenarioResult struct {
	durations []time.Duration
	dbLoads   int64
}

func runScenario(ctx context.Context, c *cache.ProfileCache, reqs [][]string, warm bool) scenarioResult {
	if warm {
		fmt.Print("  Warming cache...")
		for _, ids := range reqs {
			must(c.Load(ctx, ids))
		}
		fmt.Println(" done")
	}
	before := c.DBLoads()

	out := make([]time.Duration, 0, len(reqs))
	for _, ids := range reqs {
		start := time.Now()
		must(c.Load(ctx, ids))
		out = append(out, time.Since(start))
	}
	return scenarioResult{durations: out, dbLoads: c.DBLoads() - before}
}

// 每个请求相当于一次会话列表：10~40 个对端，热点用户更容易出现
func makeRequests(ids []string, n int) [][]string {
	rnd := rand.New(rand.NewSource(42))
	hot := ids[:len(ids)/20]
	out := make([][]string, n)
	for i := range out {
		k := 10 + rnd.Intn(31)
		req := make([]string, k)
		for j := range req {
			if rnd.Float64() < 0.7 {
				req[j] = hot[rnd.Intn(len(hot))]
			} else {
				req[j] = ids[rnd.Intn(len(ids))]
			}
		}
		out[i] = req
	}
	return out
}

func usedMemory(info string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "used_memory_human:"); ok {
			return v
		}
	}
	return "n/a"
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

// Package marketdata periodically samples every non-empty book and
// fans the view out: a top-of-book tick per pair to Kafka, and the
// aggregated depth to a Redis sorted set for cheap range reads.
package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freyr/domain/exchange"
)

// Source is the locked view of the books the job samples from.
type Source interface {
	Pairs() []exchange.Pair
	Depth(p exchange.Pair, max int) []exchange.BookLevel
}

// Publisher delivers one tick message.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}

// Tick is the published top-of-book view of one pair.
type Tick struct {
	Pair      string          `json:"pair"`
	BestPrice decimal.Decimal `json:"best_price"`
	BestSell  decimal.Decimal `json:"best_sell"`
	BestBuy   decimal.Decimal `json:"best_buy"`
	Levels    int             `json:"levels"`
	Time      int64           `json:"time"`
}

type Config struct {
	Interval   time.Duration
	DepthLimit int
	CacheTTL   time.Duration
}

type Job struct {
	src   Source
	pub   Publisher
	cache *redis.Client
	cfg   Config
	log   *zap.Logger
	now   func() int64
}

// New builds the job. cache may be nil, in which case only ticks are
// published.
func New(src Source, pub Publisher, cache *redis.Client, cfg Config, log *zap.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Job{
		src:   src,
		pub:   pub,
		cache: cache,
		cfg:   cfg,
		log:   log,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Start runs the sampling loop until ctx is canceled.
func (j *Job) Start(ctx context.Context) {
	j.log.Info("marketdata started",
		zap.Duration("interval", j.cfg.Interval),
		zap.Int("depth_limit", j.cfg.DepthLimit))

	go func() {
		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sampleOnce(ctx)
			}
		}
	}()
}

func (j *Job) sampleOnce(ctx context.Context) {
	for _, pair := range j.src.Pairs() {
		levels := j.src.Depth(pair, j.cfg.DepthLimit)
		if len(levels) == 0 {
			continue
		}

		if err := j.publishTick(ctx, pair, levels); err != nil {
			j.log.Warn("publish tick", zap.String("pair", pair.String()), zap.Error(err))
		}
		if err := j.cacheDepth(ctx, pair, levels); err != nil {
			j.log.Warn("cache depth", zap.String("pair", pair.String()), zap.Error(err))
		}
	}
}

func (j *Job) publishTick(ctx context.Context, pair exchange.Pair, levels []exchange.BookLevel) error {
	tick := Tick{
		Pair:      pair.String(),
		BestPrice: levels[0].Price,
		BestSell:  levels[0].Sell,
		BestBuy:   levels[0].Buy,
		Levels:    len(levels),
		Time:      j.now(),
	}
	value, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return j.pub.Send(ctx, []byte(tick.Pair), value)
}

// cacheDepth rewrites the pair's sorted set in one pipeline, scored by
// price so clients can ZRANGEBYSCORE into the book.
func (j *Job) cacheDepth(ctx context.Context, pair exchange.Pair, levels []exchange.BookLevel) error {
	if j.cache == nil {
		return nil
	}

	key := "book:" + pair.String()
	members := make([]redis.Z, 0, len(levels))
	for _, lvl := range levels {
		b, err := json.Marshal(lvl)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{
			Score:  lvl.Price.InexactFloat64(),
			Member: string(b),
		})
	}

	pipe := j.cache.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, j.cfg.CacheTTL)
	_, err := pipe.Exec(ctx)
	return err
}

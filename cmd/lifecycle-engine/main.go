package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"marketpipeline/internal/broker"
	"marketpipeline/internal/broker/redisstreams"
	"marketpipeline/internal/config"
	"marketpipeline/internal/exchange"
	"marketpipeline/internal/execreport"
	"marketpipeline/internal/ledger"
	"marketpipeline/internal/lifecycle"
	"marketpipeline/internal/obs"
	"marketpipeline/internal/wireformat"
	"marketpipeline/pkg/conn"
)

// cancelQueueInterval is the cadence of the one-at-a-time cancel
// protocol (§4.4.5).
const cancelQueueInterval = 1 * time.Second

// fillDrainInterval is how often buffered fills older than the 2-second
// reorder window are released to the fill machine.
const fillDrainInterval = 100 * time.Millisecond

// The Lifecycle Engine (§4.4): submits orders derived from actions,
// enforces the position-sizing policy, decomposes exchange fills into
// closing/opening trade portions, computes trade rewards, and reports
// executions back to the Decision Relay.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(true)
	if err != nil {
		logs.Errorf("config load failed: %+v", err)
		return
	}

	stopProfiler, err := obs.StartProfiler("lifecycle-engine", cfg.ProfilerAddress)
	if err != nil {
		logs.Errorf("profiler start failed: %+v", err)
		return
	}
	defer stopProfiler()

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	})
	defer rdb.Close()
	bus := redisstreams.New(rdb, cfg.ConsumerName)

	store, err := ledger.New(conn.Option{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		logs.Errorf("ledger init failed: %+v", err)
		return
	}
	defer store.Close()

	publisher := execreport.New(bus, store)

	exClient, err := exchange.New(ctx, exchange.Config{
		Host:       cfg.Exchange.Host,
		Port:       cfg.Exchange.Port,
		Path:       cfg.Exchange.Path,
		APIKey:     cfg.Exchange.APIKey,
		SecretKey:  cfg.Exchange.SecretKey,
		Passphrase: cfg.Exchange.Passphrase,
		InstID:     cfg.Exchange.InstID,
		InstType:   cfg.Exchange.InstType,
		TdMode:     cfg.Exchange.TdMode,
	})
	if err != nil {
		logs.Errorf("exchange client init failed: %+v", err)
		return
	}

	engine := lifecycle.NewEngineWithReorderWindow(exClient, publisher, cfg.FillReorderWindow.Milliseconds())
	metrics := obs.NewMetrics()
	engine.SetMetrics(metrics)
	go logMetrics(ctx, metrics)

	go func() {
		if err := exClient.Run(ctx); err != nil && ctx.Err() == nil {
			logs.Errorf("exchange client exited: %+v", err)
		}
	}()
	go engine.Run(ctx)
	go watchBalances(ctx, exClient, engine)
	go drainFillsLoop(ctx, engine)
	go cancelQueueLoop(ctx, engine)

	if err := bus.Consume(ctx, broker.QueueOMSAction, func(ctx context.Context, d broker.Delivery) error {
		return handleAction(ctx, engine, d.Payload)
	}); err != nil && ctx.Err() == nil {
		logs.Errorf("oms action consumer exited: %+v", err)
	}
}

func handleAction(ctx context.Context, engine *lifecycle.Engine, payload []byte) error {
	action, ok := wireformat.DecodeAction(payload)
	if !ok {
		logs.Errorf("malformed action frame, dropping, size=%d", len(payload))
		return nil
	}
	return engine.HandleAction(ctx, action)
}

func watchBalances(ctx context.Context, exClient *exchange.Client, engine *lifecycle.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case balance, ok := <-exClient.Balances():
			if !ok {
				return
			}
			engine.SetBalance(balance)
		}
	}
}

func drainFillsLoop(ctx context.Context, engine *lifecycle.Engine) {
	ticker := time.NewTicker(fillDrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.DrainFills(ctx, time.Now().UnixMilli())
		}
	}
}

func logMetrics(ctx context.Context, m *obs.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			logs.Infof("lifecycle-engine metrics: fills_processed=%d execution_reports_published=%d",
				snap.Counters[obs.CounterFillsProcessed], snap.Counters[obs.CounterExecutionReportsPublished])
		}
	}
}

func cancelQueueLoop(ctx context.Context, engine *lifecycle.Engine) {
	ticker := time.NewTicker(cancelQueueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.TickCancelQueue(ctx)
		}
	}
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"

	"marketpipeline/internal/broker/redisstreams"
	"marketpipeline/internal/config"
	"marketpipeline/internal/depthsvc"
	"marketpipeline/internal/obs"
)

const metricsLogInterval = 30 * time.Second

// The Depth Engine (§4.1): maintains one instrument's L2 order book from
// OKX's public books-l2-tbt channel and republishes feature frames for
// the Decision Relay.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(false)
	if err != nil {
		logs.Errorf("config load failed: %+v", err)
		return
	}

	stopProfiler, err := obs.StartProfiler("depth-engine", cfg.ProfilerAddress)
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

	publisher := redisstreams.New(rdb, cfg.ConsumerName)
	engine := depthsvc.New(publisher)
	metrics := obs.NewMetrics()
	engine.SetMetrics(metrics)
	go logMetrics(ctx, metrics)

	client, err := depthsvc.NewClient(ctx, depthsvc.ClientConfig{
		Host:   cfg.DepthFeed.Host,
		Port:   cfg.DepthFeed.Port,
		Path:   cfg.DepthFeed.Path,
		InstID: cfg.DepthFeed.InstID,
	}, engine)
	if err != nil {
		logs.Errorf("depth feed client init failed: %+v", err)
		return
	}

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logs.Errorf("depth feed client exited: %+v", err)
	}
}

func logMetrics(ctx context.Context, m *obs.Metrics) {
	ticker := time.NewTicker(metricsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			logs.Infof("depth-engine metrics: frames_published=%d resnapshots=%d",
				snap.Counters[obs.CounterFramesPublished], snap.Counters[obs.CounterBookResnapshots])
		}
	}
}

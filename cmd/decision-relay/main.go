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
	"marketpipeline/internal/decision"
	"marketpipeline/internal/execreport"
	"marketpipeline/internal/obs"
	"marketpipeline/internal/relay"
	"marketpipeline/internal/wireformat"
)

// The Decision Relay (§4.3): buffers feature frames from the Depth
// Engine, invokes the black-box decision function on the even-parity
// gate, publishes the resulting action, and correlates later execution
// reports back to the decision that caused them.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(false)
	if err != nil {
		logs.Errorf("config load failed: %+v", err)
		return
	}

	stopProfiler, err := obs.StartProfiler("decision-relay", cfg.ProfilerAddress)
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

	stub := decision.NewDeterministicStub()
	r := relay.New(stub, stub)
	metrics := obs.NewMetrics()
	r.SetMetrics(metrics)
	go logMetrics(ctx, metrics)

	errCh := make(chan error, 2)
	go func() {
		errCh <- bus.Consume(ctx, broker.QueuePPO, func(ctx context.Context, d broker.Delivery) error {
			return handleFeatureFrame(ctx, r, bus, d.Payload)
		})
	}()
	go func() {
		errCh <- bus.Consume(ctx, broker.QueuePPOExecution, func(ctx context.Context, d broker.Delivery) error {
			return handleExecutionReport(r, d.Payload)
		})
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logs.Errorf("decision relay consumer exited: %+v", err)
		}
	}
}

func handleFeatureFrame(ctx context.Context, r *relay.Relay, bus broker.Broker, payload []byte) error {
	decoded, ok := wireformat.DecodeFeatureFrame(payload)
	if !ok {
		logs.Errorf("malformed feature frame, dropping, size=%d", len(payload))
		return nil
	}

	action, produced := r.OnFeatureFrame(decision.FeatureFrame{
		StateID: decoded.SequenceID,
		Mid:     decoded.Mid,
		Vector:  decoded.Vector,
	})
	if !produced {
		return nil
	}

	frame, err := wireformat.EncodeAction(nil, action.Kind, action.PriceOffset, action.VolumeFraction, action.MidPriceCents, action.StateID)
	if err != nil {
		logs.Errorf("action encode failed: %+v", err)
		return nil
	}
	if err := bus.Publish(ctx, broker.TopicOMS, broker.RoutingKeyOMSAction, frame); err != nil {
		return err
	}
	return nil
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
			logs.Infof("decision-relay metrics: actions_published=%d", snap.Counters[obs.CounterActionsPublished])
		}
	}
}

func handleExecutionReport(r *relay.Relay, payload []byte) error {
	report, err := execreport.Decode(payload)
	if err != nil {
		logs.Errorf("malformed execution report, dropping: %+v", err)
		return nil
	}
	r.OnExecutionReport(report)
	return nil
}

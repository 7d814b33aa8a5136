// Package execreport is the §6.2 wire boundary between the Lifecycle
// Engine and the Decision Relay: it marshals lifecycle's in-process
// report types into the execution-report JSON, and unmarshals that JSON
// back into internal/relay's ExecutionReport on the consuming side.
package execreport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"marketpipeline/internal/broker"
	"marketpipeline/internal/ledger"
	"marketpipeline/internal/lifecycle"
	"marketpipeline/internal/relay"
)

// wireReport is the on-the-wire shape of §6.2. Per the "execution
// fraction semantics" open question, execution_percentage stays a
// [0,1] fraction on per-execution reports while filled_portions stays
// percent [0,100] on closure reports; the two are never unified.
type wireReport struct {
	StateID              uint32             `json:"state_id,omitempty"`
	OkxID                string             `json:"okx_id,omitempty"`
	IsTradeClosed        bool               `json:"is_trade_closed"`
	ExecutionPercentage  *float64           `json:"execution_percentage,omitempty"`
	FilledPortions       []map[string]float64 `json:"filled_portions,omitempty"`
	Reward               float64            `json:"reward,omitempty"`
}

// Encode renders a lifecycle.PerExecutionReport or lifecycle.ClosureReport
// as the §6.2 wire JSON. Any other type is a programmer error.
func Encode(report any) ([]byte, error) {
	switch r := report.(type) {
	case lifecycle.PerExecutionReport:
		frac := r.ExecutionFraction
		return json.Marshal(wireReport{
			StateID:             r.StateID,
			OkxID:               r.ExchangeID,
			IsTradeClosed:       false,
			ExecutionPercentage: &frac,
		})
	case lifecycle.ClosureReport:
		portions := make([]map[string]float64, 0, len(r.FilledPortions))
		for okxID, percent := range r.FilledPortions {
			portions = append(portions, map[string]float64{okxID: percent})
		}
		return json.Marshal(wireReport{
			IsTradeClosed:  true,
			FilledPortions: portions,
			Reward:         r.Reward,
		})
	default:
		return nil, fmt.Errorf("execreport: unsupported report type %T", report)
	}
}

// Decode parses §6.2 wire JSON into the shape internal/relay consumes.
func Decode(payload []byte) (relay.ExecutionReport, error) {
	var w wireReport
	if err := json.Unmarshal(payload, &w); err != nil {
		return relay.ExecutionReport{}, err
	}
	out := relay.ExecutionReport{
		StateID:             w.StateID,
		OkxID:               w.OkxID,
		IsTradeClosed:       w.IsTradeClosed,
		ExecutionPercentage: w.ExecutionPercentage,
		Reward:              w.Reward,
	}
	if len(w.FilledPortions) > 0 {
		merged := make(map[string]float64, len(w.FilledPortions))
		for _, m := range w.FilledPortions {
			for k, v := range m {
				merged[k] = v
			}
		}
		out.FilledPortions = merged
	}
	return out, nil
}

// Publisher implements lifecycle.Publisher: it republishes every report
// to the execution-update topic (§6.1) and records every successfully
// published report to the ledger, plus a trade_closures row for each
// closure, for the at-least-once audit trail (§3.10).
// store may be nil, in which case only the broker publish happens.
type Publisher struct {
	broker broker.Broker
	store  *ledger.Store
}

// New constructs a Publisher. store is optional.
func New(b broker.Broker, store *ledger.Store) *Publisher {
	return &Publisher{broker: b, store: store}
}

// PublishExecution implements lifecycle.Publisher.
func (p *Publisher) PublishExecution(ctx context.Context, report any) error {
	payload, err := Encode(report)
	if err != nil {
		return err
	}
	if err := p.broker.Publish(ctx, broker.TopicExecution, broker.RoutingKeyExecutionUpdate, payload); err != nil {
		logs.Warn("execution report publish failed")
		return err
	}
	p.recordLedger(report)
	return nil
}

func (p *Publisher) recordLedger(report any) {
	if p.store == nil {
		return
	}
	switch r := report.(type) {
	case lifecycle.PerExecutionReport:
		frac := r.ExecutionFraction
		if err := p.store.RecordExecutionReport(ledger.ExecutionReport{
			StateID:           r.StateID,
			ExchangeID:        r.ExchangeID,
			IsTradeClosed:     false,
			ExecutionFraction: &frac,
			ReportedAt:        time.Now().UTC(),
		}); err != nil {
			logs.Warn("execution report ledger write failed")
		}
	case lifecycle.ClosureReport:
		reward := r.Reward
		if err := p.store.RecordExecutionReport(ledger.ExecutionReport{
			TradeID:       r.TradeID,
			IsTradeClosed: true,
			Reward:        &reward,
			ReportedAt:    time.Now().UTC(),
		}); err != nil {
			logs.Warn("execution report ledger write failed")
		}
		if err := p.store.RecordClosure(ledger.TradeClosure{
			TradeID:   r.TradeID,
			Direction: r.Direction.String(),
			Reward:    r.Reward,
			MaxDD:     r.MaxDD,
			BuyQty:    r.BuyQty,
			SellQty:   r.SellQty,
			BuyQP:     r.BuyQP,
			SellQP:    r.SellQP,
			ClosedAt:  time.Now().UTC(),
		}); err != nil {
			logs.Warn("trade closure ledger write failed")
		}
	}
}

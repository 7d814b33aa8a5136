package relay

import (
	"math/rand"

	"github.com/yanun0323/logs"

	"marketpipeline/internal/decision"
	"marketpipeline/internal/obs"
)

// NetworkWindow is the number of buffered frames a decision is produced
// from (§4.3).
const NetworkWindow = 80

// FrameAndActionCapacity bounds the frame and action ring buffers.
const FrameAndActionCapacity = 1000

// ExplorationDecisions is the number of decisions during which
// price_offset is negated with 50% probability (exploration gate).
const ExplorationDecisions = 1000

// ActionRecord is a published action together with the state_id window
// that produced it, retained so a later execution report can be
// correlated back to the decision that caused it.
type ActionRecord struct {
	Kind           uint8
	PriceOffset    float64
	VolumeFraction float64
	MidPriceCents  uint32
	StateID        uint16
	WindowStateIDs []uint16
}

// ExecutionReport mirrors the wire JSON in §6.2.
type ExecutionReport struct {
	StateID              uint32
	OkxID                string
	IsTradeClosed        bool
	ExecutionPercentage  *float64           // fraction [0,1], intermediate reports only
	FilledPortions       map[string]float64 // okx_id -> percent [0,100], closure only
	Reward               float64
}

// Relay buffers feature frames, invokes the decision function on the
// even-parity gate, and correlates later execution reports.
type Relay struct {
	frames  *RingBuffer[decision.FeatureFrame]
	actions *RingBuffer[ActionRecord]
	seen    *seenSet

	decider decision.Decider
	trainer decision.Trainer
	rng     *rand.Rand

	decisionCount int
	skeleton      *TradeSkeleton

	metrics *obs.Metrics
}

// SetMetrics attaches a metrics sink; nil disables instrumentation.
func (r *Relay) SetMetrics(m *obs.Metrics) {
	r.metrics = m
}

// New creates a Relay around the given Decider/Trainer pair (typically
// the same value implementing both, e.g. decision.NewDeterministicStub()).
func New(decider decision.Decider, trainer decision.Trainer) *Relay {
	return &Relay{
		frames:   NewRingBuffer[decision.FeatureFrame](FrameAndActionCapacity),
		actions:  NewRingBuffer[ActionRecord](FrameAndActionCapacity),
		seen:     newSeenSet(),
		decider:  decider,
		trainer:  trainer,
		rng:      rand.New(rand.NewSource(1)),
		skeleton: newTradeSkeleton(),
	}
}

// OnFeatureFrame buffers the frame and, once NetworkWindow frames have
// accumulated and the frame's state_id has even parity, produces and
// buffers an action. ok is false when no decision was produced this call.
func (r *Relay) OnFeatureFrame(frame decision.FeatureFrame) (ActionRecord, bool) {
	r.frames.Push(frame.StateID, frame)

	if r.frames.Len() < NetworkWindow {
		return ActionRecord{}, false
	}
	if frame.StateID%2 != 0 {
		return ActionRecord{}, false
	}

	window := r.frames.Newest(NetworkWindow)
	priceOffset, volumeFraction := r.decider.Decide(window)

	r.decisionCount++
	if r.decisionCount <= ExplorationDecisions && r.rng.Float64() < 0.5 {
		priceOffset = -priceOffset
	}

	windowIDs := make([]uint16, len(window))
	for i, f := range window {
		windowIDs[i] = f.StateID
	}

	rec := ActionRecord{
		Kind:           0,
		PriceOffset:    priceOffset,
		VolumeFraction: volumeFraction,
		MidPriceCents:  uint32(frame.Mid * 100),
		StateID:        frame.StateID,
		WindowStateIDs: windowIDs,
	}
	r.actions.Push(frame.StateID, rec)
	r.metrics.Inc(obs.CounterActionsPublished)
	return rec, true
}

// OnExecutionReport applies an execution report per §4.3's two rules: a
// non-closing report appends an order to the in-progress trade skeleton;
// a closing report attaches execution fractions, hands the completed
// trade to the training hook, and resets the skeleton.
func (r *Relay) OnExecutionReport(report ExecutionReport) {
	if report.IsTradeClosed {
		r.applyClosure(report)
		return
	}
	r.applyIntermediate(report)
}

func (r *Relay) applyIntermediate(report ExecutionReport) {
	stateID := uint16(report.StateID)
	if !r.seen.MarkIfUnseen(stateID) {
		return
	}
	action, ok := r.actions.Get(stateID)
	if !ok {
		logs.Warn("execution report references unknown state_id")
		return
	}
	fraction := 0.0
	if report.ExecutionPercentage != nil {
		fraction = *report.ExecutionPercentage
	}
	added := r.skeleton.AddOrder(OrderSkeleton{
		ExchangeID:        report.OkxID,
		StateID:           action.StateID,
		WindowStateIDs:    action.WindowStateIDs,
		ExecutionFraction: fraction,
	})
	if !added {
		logs.Warn("duplicate exchange id in trade skeleton, ignoring")
	}
}

func (r *Relay) applyClosure(report ExecutionReport) {
	for okxID, percent := range report.FilledPortions {
		r.skeleton.SetExecutionFraction(okxID, percent)
	}

	orders := make([]decision.OrderOutcome, 0, len(r.skeleton.Orders()))
	for _, o := range r.skeleton.Orders() {
		orders = append(orders, decision.OrderOutcome{
			ExchangeID:        o.ExchangeID,
			ExecutionFraction: o.ExecutionFraction,
		})
	}

	r.trainer.Observe(decision.TradeOutcome{
		Reward: report.Reward,
		Orders: orders,
	})
	r.skeleton = newTradeSkeleton()
}

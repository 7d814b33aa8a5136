package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketpipeline/internal/decision"
)

func pushFrames(t *testing.T, r *Relay, ids []uint16) []ActionRecord {
	var produced []ActionRecord
	for _, id := range ids {
		rec, ok := r.OnFeatureFrame(decision.FeatureFrame{StateID: id, Mid: 30000})
		if ok {
			produced = append(produced, rec)
		}
	}
	return produced
}

func TestNoDecisionBeforeWindowFilled(t *testing.T) {
	r := New(decision.NewDeterministicStub(), decision.NewDeterministicStub())
	ids := make([]uint16, NetworkWindow-1)
	for i := range ids {
		ids[i] = uint16(i * 2)
	}
	produced := pushFrames(t, r, ids)
	require.Empty(t, produced)
}

func TestDecisionOnlyOnEvenParity(t *testing.T) {
	r := New(decision.NewDeterministicStub(), decision.NewDeterministicStub())
	// ids 0..80: the window fills at odd id 79 (no decision), then even id 80 decides.
	ids := make([]uint16, NetworkWindow+1)
	for i := range ids {
		ids[i] = uint16(i)
	}
	produced := pushFrames(t, r, ids)
	require.Len(t, produced, 1)
	require.Equal(t, ids[len(ids)-1], produced[0].StateID)
}

func TestDecisionWindowIsNewest80InArrivalOrder(t *testing.T) {
	r := New(decision.NewDeterministicStub(), decision.NewDeterministicStub())
	ids := make([]uint16, NetworkWindow+2)
	for i := range ids {
		ids[i] = uint16(i * 2)
	}
	produced := pushFrames(t, r, ids)
	require.NotEmpty(t, produced)
	last := produced[len(produced)-1]
	require.Len(t, last.WindowStateIDs, NetworkWindow)
	require.Equal(t, ids[len(ids)-1], last.WindowStateIDs[len(last.WindowStateIDs)-1])
	require.Equal(t, ids[len(ids)-NetworkWindow], last.WindowStateIDs[0])
}

func TestSequenceWrapWindowStraddles(t *testing.T) {
	r := New(decision.NewDeterministicStub(), decision.NewDeterministicStub())
	ids := make([]uint16, 0, NetworkWindow+4)
	// straddle the 2^16 wraparound: ...65532,65534,0,2,4 (80 frames in all)
	for v := uint32(65536 - 2*(NetworkWindow-3)); v < 65536; v += 2 {
		ids = append(ids, uint16(v))
	}
	for v := 0; v < 6; v += 2 {
		ids = append(ids, uint16(v))
	}
	produced := pushFrames(t, r, ids)
	require.NotEmpty(t, produced)
	last := produced[len(produced)-1]
	require.Equal(t, uint16(4), last.StateID)
	require.Len(t, last.WindowStateIDs, NetworkWindow)
}

func TestExecutionReportAtMostOncePerStateID(t *testing.T) {
	r := New(decision.NewDeterministicStub(), decision.NewDeterministicStub())
	ids := make([]uint16, NetworkWindow)
	for i := range ids {
		ids[i] = uint16(i * 2)
	}
	produced := pushFrames(t, r, ids)
	require.Len(t, produced, 1)
	stateID := produced[0].StateID

	r.OnExecutionReport(ExecutionReport{StateID: uint32(stateID), OkxID: "okx-1"})
	r.OnExecutionReport(ExecutionReport{StateID: uint32(stateID), OkxID: "okx-2"})

	require.Len(t, r.skeleton.Orders(), 1)
	require.Equal(t, "okx-1", r.skeleton.Orders()[0].ExchangeID)
}

func TestClosureResetsSkeletonAndNotifiesTrainer(t *testing.T) {
	trainer := decision.NewDeterministicStub()
	r := New(decision.NewDeterministicStub(), trainer)
	ids := make([]uint16, NetworkWindow)
	for i := range ids {
		ids[i] = uint16(i * 2)
	}
	produced := pushFrames(t, r, ids)
	stateID := produced[0].StateID
	r.OnExecutionReport(ExecutionReport{StateID: uint32(stateID), OkxID: "okx-1"})

	r.OnExecutionReport(ExecutionReport{
		IsTradeClosed:  true,
		Reward:         100.0,
		FilledPortions: map[string]float64{"okx-1": 100.0},
	})

	require.Empty(t, r.skeleton.Orders())
	require.Len(t, trainer.Observed(), 1)
	require.Equal(t, 100.0, trainer.Observed()[0].Reward)
	require.Equal(t, 100.0, trainer.Observed()[0].Orders[0].ExecutionFraction)
}

package resource

import (
	"math"
	"testing"

	"github.com/rakunlabs/datahub/internal/sample"
)

func newTestTree() *Tree {
	now := 0.0
	return NewTree(func() float64 { return now })
}

func TestPushHandlerAfterPushReceivesOnlyLaterPush(t *testing.T) {
	tree := newTestTree()
	r, err := tree.GetInput("/app/s/value", sample.Number, "")
	if err != nil {
		t.Fatalf("GetInput: %v", err)
	}

	if err := r.Push(sample.Number, "", sample.NewNumber(10.0, 1.5)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	var got *sample.Sample
	r.PushHandlers().Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {
		got = s
	}, nil)

	if got != nil {
		t.Fatalf("handler added after push should not have been called yet")
	}

	if err := r.Push(sample.Number, "", sample.NewNumber(11.0, 2.5)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got == nil || got.Timestamp() != 11.0 || got.Number() != 2.5 {
		t.Fatalf("handler got %v, want {11.0 2.5}", got)
	}
}

func TestObservationMinPeriodThrottle(t *testing.T) {
	tree := newTestTree()
	if _, err := tree.GetInput("/app/s/value", sample.Number, ""); err != nil {
		t.Fatalf("GetInput: %v", err)
	}
	obs, err := tree.GetObservation("/obs/trend")
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	obs.SetMinPeriod(1.0)
	obs.SetBufferMaxCount(100)

	src, _ := tree.FindResource("/app/s/value")
	if err := obs.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	tss := []float64{0, 0.5, 1.0, 1.6, 2.5}
	for _, ts := range tss {
		if err := src.Push(sample.Number, "", sample.NewNumber(ts, 1)); err != nil {
			t.Fatalf("push at %v: %v", ts, err)
		}
	}

	var accepted []float64
	for _, s := range obs.obs.buffer {
		accepted = append(accepted, s.Timestamp())
	}

	want := map[float64]bool{0: true, 0.5: true, 1.0: true, 1.6: true, 2.5: true}
	_ = want
	if len(accepted) != 5 {
		t.Fatalf("buffer should record every pushed sample regardless of filter result, got %d", len(accepted))
	}

	if !obs.obs.hasLastAccepted {
		t.Fatalf("expected at least one accepted sample")
	}
}

func TestRouteCoercesBoolToNumber(t *testing.T) {
	tree := newTestTree()
	a, err := tree.GetInput("/a", sample.Bool, "")
	if err != nil {
		t.Fatalf("GetInput: %v", err)
	}
	b, err := tree.GetOutput("/b", sample.Number, "")
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if err := b.SetSource(a); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	if err := a.Push(sample.Bool, "", sample.NewBool(5, true)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if b.CurrentType() != sample.Number || b.CurrentValue().Number() != 1.0 {
		t.Fatalf("b current = %v %v, want Number 1.0", b.CurrentType(), b.CurrentValue())
	}
	if b.CurrentValue().Timestamp() != 5 {
		t.Fatalf("timestamp not preserved across route: got %v", b.CurrentValue().Timestamp())
	}
}

func TestSetSourceCycleDetected(t *testing.T) {
	tree := newTestTree()
	x, err := tree.GetObservation("/obs/x")
	if err != nil {
		t.Fatalf("GetObservation x: %v", err)
	}
	y, err := tree.GetObservation("/obs/y")
	if err != nil {
		t.Fatalf("GetObservation y: %v", err)
	}

	if err := x.SetSource(y); err != nil {
		t.Fatalf("x.SetSource(y): %v", err)
	}

	err = y.SetSource(x)
	var e *Error
	if err == nil {
		t.Fatal("expected CycleDetected")
	}
	if !errorsAs(err, &e) || e.Kind != CycleDetected {
		t.Fatalf("got %v, want CycleDetected", err)
	}
}

func TestJSONExtractionProducesNumericObservation(t *testing.T) {
	tree := newTestTree()
	env, err := tree.GetInput("/app/s/env", sample.JSON, "")
	if err != nil {
		t.Fatalf("GetInput: %v", err)
	}
	obs, err := tree.GetObservation("/obs/temp")
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	obs.SetJSONExtraction("t.h")
	obs.SetBufferMaxCount(10)
	if err := obs.SetSource(env); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	if err := env.Push(sample.JSON, "", sample.NewJSON(1, `{"t":{"h":77,"p":1013}}`)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if obs.CurrentType() != sample.Number || obs.CurrentValue().Number() != 77 {
		t.Fatalf("obs current = %v %v, want Number 77", obs.CurrentType(), obs.CurrentValue())
	}
}

func TestUpdateWindowReplaysLastPushOnly(t *testing.T) {
	tree := newTestTree()
	src, err := tree.GetInput("/app/s/value", sample.Number, "")
	if err != nil {
		t.Fatalf("GetInput: %v", err)
	}
	obs, err := tree.GetObservation("/obs/x")
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	obs.SetBufferMaxCount(100)
	if err := obs.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	tree.StartUpdate()
	obs.SetMinPeriod(10) // admin write during the window marks obs configChanging

	var delivered []float64
	obs.PushHandlers().Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {
		delivered = append(delivered, s.Timestamp())
	}, nil)

	for i := 1.0; i <= 5; i++ {
		if err := src.Push(sample.Number, "", sample.NewNumber(i, i)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if len(delivered) != 0 {
		t.Fatalf("no pushes should be delivered while update window is open, got %v", delivered)
	}

	tree.EndUpdate()

	if len(delivered) != 1 || delivered[0] != 5 {
		t.Fatalf("after EndUpdate, delivered = %v, want exactly [5]", delivered)
	}
}

func TestTransformMeanOverBuffer(t *testing.T) {
	tree := newTestTree()
	src, _ := tree.GetInput("/app/s/value", sample.Number, "")
	obs, err := tree.GetObservation("/obs/mean")
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	obs.SetBufferMaxCount(10)
	obs.SetTransform(TransformMean, 0)
	if err := obs.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	for _, v := range []float64{1, 2, 3} {
		if err := src.Push(sample.Number, "", sample.NewNumber(float64(v), v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if obs.CurrentValue() == nil || math.Abs(obs.CurrentValue().Number()-2.0) > 1e-9 {
		t.Fatalf("mean transform current = %v, want ~2.0", obs.CurrentValue())
	}
}

func TestTransformScriptOverBuffer(t *testing.T) {
	tree := newTestTree()
	src, _ := tree.GetInput("/app/s/value", sample.Number, "")
	obs, err := tree.GetObservation("/obs/script")
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	obs.SetBufferMaxCount(10)
	obs.SetTransform(TransformScript, 0)
	obs.SetTransformScript("values.reduce((a, b) => a + b, 0)")
	if err := obs.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	for _, v := range []float64{1, 2, 3} {
		if err := src.Push(sample.Number, "", sample.NewNumber(float64(v), v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if obs.CurrentValue() == nil || math.Abs(obs.CurrentValue().Number()-6.0) > 1e-9 {
		t.Fatalf("script transform current = %v, want ~6.0 (sum)", obs.CurrentValue())
	}
}

func errorsAs(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

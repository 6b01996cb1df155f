package handler

import (
	"testing"

	"github.com/rakunlabs/datahub/internal/sample"
)

func TestAddCallRemove(t *testing.T) {
	l := NewList()
	var got *sample.Sample
	ref := l.Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {
		got = s
	}, nil)

	s := sample.NewNumber(1, 42)
	if err := l.Call(ref, sample.Number, s); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != s {
		t.Fatalf("handler did not receive sample")
	}

	if err := l.Remove(ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := l.Call(ref, sample.Number, s); err != ErrNotFound {
		t.Fatalf("Call after remove = %v, want ErrNotFound", err)
	}
}

func TestCallAllOrderPreserved(t *testing.T) {
	l := NewList()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		l.Add(sample.Trigger, func(kind sample.Kind, s *sample.Sample, ctx any) {
			order = append(order, i)
		}, nil)
	}
	l.CallAll(sample.Trigger, sample.NewTrigger(1))
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("CallAll order = %v, want [0 1 2]", order)
	}
}

func TestStringHandlerReceivesConvertedNumeric(t *testing.T) {
	l := NewList()
	var got string
	l.Add(sample.String, func(kind sample.Kind, s *sample.Sample, ctx any) {
		got = s.Text()
	}, nil)
	l.CallAll(sample.Number, sample.NewNumber(1, 3.5))
	if got != "3.5" {
		t.Fatalf("string handler got %q, want 3.5", got)
	}
}

func TestMismatchedKindSkipped(t *testing.T) {
	l := NewList()
	called := false
	l.Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {
		called = true
	}, nil)
	l.CallAll(sample.Bool, sample.NewBool(1, true))
	if called {
		t.Fatalf("numeric handler should not receive bool")
	}
}

func TestRefStaleAfterRemoveReusedSlot(t *testing.T) {
	l := NewList()
	ref1 := l.Add(sample.Trigger, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)
	if err := l.Remove(ref1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ref2 := l.Add(sample.Trigger, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)

	if err := l.Call(ref1, sample.Trigger, sample.NewTrigger(1)); err != ErrNotFound {
		t.Fatalf("stale ref1 Call = %v, want ErrNotFound", err)
	}
	if err := l.Call(ref2, sample.Trigger, sample.NewTrigger(1)); err != nil {
		t.Fatalf("ref2 Call: %v", err)
	}
}

func TestRefValidAfterMoveAll(t *testing.T) {
	src := NewList()
	var got *sample.Sample
	ref := src.Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {
		got = s
	}, nil)

	dst := NewList()
	MoveAll(dst, src)

	s := sample.NewNumber(1, 7)
	if err := dst.Call(ref, sample.Number, s); err != nil {
		t.Fatalf("Call on dst after MoveAll: %v", err)
	}
	if got != s {
		t.Fatalf("handler moved to dst did not receive sample")
	}

	if !src.Empty() {
		t.Fatalf("src should be empty after MoveAll")
	}
}

func TestMoveAllPreservesSlotsAroundRemovedEntries(t *testing.T) {
	src := NewList()
	ref0 := src.Add(sample.Trigger, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)
	ref1 := src.Add(sample.Number, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)
	if err := src.Remove(ref0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ref2 := src.Add(sample.String, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)

	dst := NewList()
	MoveAll(dst, src)

	if err := dst.Call(ref1, sample.Number, sample.NewNumber(1, 1)); err != nil {
		t.Fatalf("ref1 Call on dst: %v", err)
	}
	if err := dst.Call(ref2, sample.String, sample.NewString(1, "x")); err != nil {
		t.Fatalf("ref2 Call on dst: %v", err)
	}
	if err := dst.Call(ref0, sample.Trigger, sample.NewTrigger(1)); err != ErrNotFound {
		t.Fatalf("removed ref0 Call on dst = %v, want ErrNotFound", err)
	}

	// dst can still allocate new handlers after the move.
	fresh := dst.Add(sample.Trigger, func(kind sample.Kind, s *sample.Sample, ctx any) {}, nil)
	if err := dst.Call(fresh, sample.Trigger, sample.NewTrigger(1)); err != nil {
		t.Fatalf("fresh ref Call on dst: %v", err)
	}
}

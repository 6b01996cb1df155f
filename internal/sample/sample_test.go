package sample

import (
	"math"
	"testing"
)

func TestConvertToJSON(t *testing.T) {
	cases := []struct {
		name string
		s    *Sample
		want string
	}{
		{"trigger", NewTrigger(1), "null"},
		{"bool-true", NewBool(1, true), "true"},
		{"bool-false", NewBool(1, false), "false"},
		{"number", NewNumber(1, 1.5), "1.5"},
		{"string", NewString(1, "hi"), `"hi"`},
		{"json", NewJSON(1, `{"a":1}`), `{"a":1}`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.s.ConvertToJSON(); got != c.want {
				t.Errorf("ConvertToJSON() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestCoerceBoolToNumber(t *testing.T) {
	s := NewBool(5, true)
	n := s.Coerce(Number)
	if n.Kind() != Number || n.Number() != 1 {
		t.Fatalf("bool(true)->number = %v %v, want Number 1", n.Kind(), n.Number())
	}
	if n.Timestamp() != 5 {
		t.Fatalf("timestamp not preserved: got %v", n.Timestamp())
	}
}

func TestCoerceStringToBoolEmpty(t *testing.T) {
	s := NewString(1, "")
	b := s.Coerce(Bool)
	if b.Bool() != false {
		t.Fatalf("empty string -> bool should be false")
	}
}

func TestCoerceTriggerToNumberIsNaN(t *testing.T) {
	n := NewTrigger(1).Coerce(Number)
	if !math.IsNaN(n.Number()) {
		t.Fatalf("trigger->number should be NaN, got %v", n.Number())
	}
}

func TestCoerceJSONParseBoolNumber(t *testing.T) {
	j := NewJSON(1, "42")
	if b := j.Coerce(Bool); !b.Bool() {
		t.Fatalf("json 42 -> bool should be true")
	}
	if n := j.Coerce(Number); n.Number() != 42 {
		t.Fatalf("json 42 -> number should be 42, got %v", n.Number())
	}

	j2 := NewJSON(1, "notanumber")
	if n := j2.Coerce(Number); !math.IsNaN(n.Number()) {
		t.Fatalf("json notanumber -> number should be NaN")
	}
}

func TestRefcount(t *testing.T) {
	s := NewTrigger(1)
	if s.RefCount() != 1 {
		t.Fatalf("new sample refcount = %d, want 1", s.RefCount())
	}
	s.Retain()
	if s.RefCount() != 2 {
		t.Fatalf("after Retain refcount = %d, want 2", s.RefCount())
	}
	s.Release()
	if s.RefCount() != 1 {
		t.Fatalf("after Release refcount = %d, want 1", s.RefCount())
	}
}

func TestWithTimestampDoesNotMutateOriginal(t *testing.T) {
	orig := NewNumber(1, 10)
	re := orig.WithTimestamp(99)
	if orig.Timestamp() != 1 {
		t.Fatalf("WithTimestamp mutated original sample")
	}
	if re.Timestamp() != 99 || re.Number() != 10 {
		t.Fatalf("WithTimestamp result wrong: ts=%v n=%v", re.Timestamp(), re.Number())
	}
}

func TestStringTruncation(t *testing.T) {
	long := make([]byte, MaxStringLen+10)
	for i := range long {
		long[i] = 'a'
	}
	s := NewString(1, string(long))
	if len(s.Text()) != MaxStringLen {
		t.Fatalf("string not truncated to MaxStringLen: got %d", len(s.Text()))
	}
}

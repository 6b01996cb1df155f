// Package sample implements the immutable, reference-counted, tagged-union
// value that flows through the resource tree.
package sample

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Kind identifies the tagged-union variant a Sample carries.
type Kind int

const (
	Trigger Kind = iota
	Bool
	Number
	String
	JSON
)

func (k Kind) String() string {
	switch k {
	case Trigger:
		return "trigger"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// MaxStringLen bounds string/json sample payloads; longer payloads are
// truncated silently and no error is reported.
const MaxStringLen = 4096

// Sample is an immutable timestamped value, shared via refcount. It is not
// mutated after construction; when the push pipeline substitutes an
// override it re-stamps a clone made by WithTimestamp.
type Sample struct {
	ts   float64
	kind Kind
	b    bool
	n    float64
	s    string // string payload for String and JSON kinds

	refs *int32
}

func newRefs() *int32 {
	n := int32(1)
	return &n
}

func resolveTimestamp(ts float64) float64 {
	if ts == 0 {
		return float64(time.Now().UnixNano()) / 1e9
	}
	return ts
}

// NewTrigger constructs a trigger sample.
func NewTrigger(ts float64) *Sample {
	return &Sample{ts: resolveTimestamp(ts), kind: Trigger, refs: newRefs()}
}

// NewBool constructs a boolean sample.
func NewBool(ts float64, v bool) *Sample {
	return &Sample{ts: resolveTimestamp(ts), kind: Bool, b: v, refs: newRefs()}
}

// NewNumber constructs a numeric sample.
func NewNumber(ts float64, v float64) *Sample {
	return &Sample{ts: resolveTimestamp(ts), kind: Number, n: v, refs: newRefs()}
}

// NewString constructs a string sample, truncating payloads over MaxStringLen.
func NewString(ts float64, v string) *Sample {
	if len(v) > MaxStringLen {
		v = v[:MaxStringLen]
	}
	return &Sample{ts: resolveTimestamp(ts), kind: String, s: v, refs: newRefs()}
}

// NewJSON constructs a JSON sample. The caller is responsible for having
// validated v as a single JSON value (see package jsonpath).
func NewJSON(ts float64, v string) *Sample {
	if len(v) > MaxStringLen {
		v = v[:MaxStringLen]
	}
	return &Sample{ts: resolveTimestamp(ts), kind: JSON, s: v, refs: newRefs()}
}

// Timestamp returns the sample's timestamp in seconds since the Unix epoch.
func (s *Sample) Timestamp() float64 { return s.ts }

// Kind returns the sample's tagged-union variant.
func (s *Sample) Kind() Kind { return s.kind }

// Bool returns the boolean payload; only meaningful for Kind() == Bool.
func (s *Sample) Bool() bool { return s.b }

// Number returns the numeric payload; only meaningful for Kind() == Number.
func (s *Sample) Number() float64 { return s.n }

// Text returns the raw string/json payload (no surrounding quotes added).
func (s *Sample) Text() string { return s.s }

// Retain increments the sample's refcount and returns it, for callers that
// are about to hand the sample across a dispatch boundary (destination
// fan-out, handler call).
func (s *Sample) Retain() *Sample {
	atomic.AddInt32(s.refs, 1)
	return s
}

// Release decrements the refcount. It panics on a release past zero, which
// would indicate a holder double-released a sample it did not own.
func (s *Sample) Release() {
	if atomic.AddInt32(s.refs, -1) < 0 {
		panic("sample: released more times than retained")
	}
}

// RefCount reports the current refcount, for tests.
func (s *Sample) RefCount() int32 { return atomic.LoadInt32(s.refs) }

// WithTimestamp returns a fresh sample identical to s but re-stamped with ts.
// Used by the push pipeline when substituting an override value: the
// override's sample is cloned and re-stamped with the incoming timestamp
// before it is shared, so the single mutation rule in the refcount design
// is preserved (the rewrite happens pre-share, not in place on a shared
// value).
func (s *Sample) WithTimestamp(ts float64) *Sample {
	c := *s
	c.ts = resolveTimestamp(ts)
	c.refs = newRefs()
	return &c
}

// Copy returns a fresh sample with the same kind and value.
func (s *Sample) Copy() *Sample {
	c := *s
	c.refs = newRefs()
	return &c
}

// ConvertToJSON yields the canonical JSON serialization of the sample:
// null for trigger, true/false for bool, a number in the shortest plain
// decimal form that round-trips (1.5, not 1.500000), a quoted
// string (no further escaping of what was already present), or the raw
// text for json.
func (s *Sample) ConvertToJSON() string {
	switch s.kind {
	case Trigger:
		return "null"
	case Bool:
		if s.b {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(s.n)
	case String:
		return `"` + s.s + `"`
	case JSON:
		return s.s
	default:
		return "null"
	}
}

func formatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Coerce converts s to the requested kind per the coercion table,
// preserving the timestamp.
func (s *Sample) Coerce(to Kind) *Sample {
	if s.kind == to {
		return s.Copy()
	}

	ts := s.ts
	switch s.kind {
	case Trigger:
		switch to {
		case Bool:
			return &Sample{ts: ts, kind: Bool, b: false, refs: newRefs()}
		case Number:
			return &Sample{ts: ts, kind: Number, n: math.NaN(), refs: newRefs()}
		case String:
			return &Sample{ts: ts, kind: String, s: "", refs: newRefs()}
		case JSON:
			return &Sample{ts: ts, kind: JSON, s: "null", refs: newRefs()}
		}
	case Bool:
		switch to {
		case Trigger:
			return NewTrigger(ts)
		case Number:
			if s.b {
				return &Sample{ts: ts, kind: Number, n: 1, refs: newRefs()}
			}
			return &Sample{ts: ts, kind: Number, n: 0, refs: newRefs()}
		case String:
			if s.b {
				return &Sample{ts: ts, kind: String, s: "true", refs: newRefs()}
			}
			return &Sample{ts: ts, kind: String, s: "false", refs: newRefs()}
		case JSON:
			if s.b {
				return &Sample{ts: ts, kind: JSON, s: "true", refs: newRefs()}
			}
			return &Sample{ts: ts, kind: JSON, s: "false", refs: newRefs()}
		}
	case Number:
		switch to {
		case Trigger:
			return NewTrigger(ts)
		case Bool:
			return &Sample{ts: ts, kind: Bool, b: s.n != 0, refs: newRefs()}
		case String:
			return &Sample{ts: ts, kind: String, s: formatNumber(s.n), refs: newRefs()}
		case JSON:
			return &Sample{ts: ts, kind: JSON, s: formatNumber(s.n), refs: newRefs()}
		}
	case String:
		switch to {
		case Trigger:
			return NewTrigger(ts)
		case Bool:
			return &Sample{ts: ts, kind: Bool, b: len(strings.TrimSpace(s.s)) > 0, refs: newRefs()}
		case Number:
			if len(strings.TrimSpace(s.s)) > 0 {
				return &Sample{ts: ts, kind: Number, n: 1, refs: newRefs()}
			}
			return &Sample{ts: ts, kind: Number, n: 0, refs: newRefs()}
		case JSON:
			v := `"` + s.s + `"`
			if len(v) > MaxStringLen {
				v = v[:MaxStringLen-1] + `"`
			}
			return &Sample{ts: ts, kind: JSON, s: v, refs: newRefs()}
		}
	case JSON:
		switch to {
		case Trigger:
			return NewTrigger(ts)
		case Bool:
			return &Sample{ts: ts, kind: Bool, b: ParseBool(s.s), refs: newRefs()}
		case Number:
			return &Sample{ts: ts, kind: Number, n: ParseNumber(s.s), refs: newRefs()}
		case String:
			v := s.s
			if len(v) > MaxStringLen {
				v = v[:MaxStringLen]
			}
			return &Sample{ts: ts, kind: String, s: v, refs: newRefs()}
		}
	}
	panic(fmt.Sprintf("sample: unreachable coercion %s->%s", s.kind, to))
}

// ParseBool implements the parse-bool rule used by json->bool coercion
// (string->bool uses non-empty-after-trim instead, and jsonpath keeps its
// own convertToBool): "true"/"false" literals first,
// else fall back to a numeric parse (non-zero, non-NaN is true), else
// non-empty text is true.
func ParseBool(text string) bool {
	switch text {
	case "true":
		return true
	case "false":
		return false
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v != 0 && !math.IsNaN(v)
	}
	return len(text) > 0
}

// ParseNumber implements the parse-number rule used by json->number
// coercion (jsonpath keeps its own convertToNumber).
func ParseNumber(text string) float64 {
	switch text {
	case "true":
		return 1
	case "false":
		return 0
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v
	}
	return math.NaN()
}

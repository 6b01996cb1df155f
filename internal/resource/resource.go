// Package resource implements the resource tree: Entry (C7), Resource
// (C4) together with its Input/Output (C5) and Observation (C6)
// specializations, and the push/route/filter pipeline.
//
// Rather than a type hierarchy, a single Resource struct carries optional
// embedded io/observation state (ioState/obsState): Input/Output/Observation
// are specializations of one base node, composition over inheritance.
package resource

import (
	"github.com/rakunlabs/datahub/internal/handler"
	"github.com/rakunlabs/datahub/internal/sample"
)

// Transform identifies an observation's aggregate transform kind.
type Transform int

const (
	TransformNone Transform = iota
	TransformMean
	TransformStdDev
	TransformMax
	TransformMin
	// TransformScript is additive: the transform window is handed to a
	// sandboxed script (see internal/jsonpath's goja integration) rather
	// than one of the four fixed aggregates above.
	TransformScript
)

// override is an admin-forced or fallback value.
type override struct {
	kind  sample.Kind
	value *sample.Sample
}

// ioState holds the C5 IoPoint specialization: Input/Output resources
// have a fixed data type set at creation and may be marked optional.
type ioState struct {
	isOutput bool
	fixed    sample.Kind
	optional bool
}

// Resource is the C4 base node, optionally carrying ioState or obsState
// depending on its Entry's kind.
type Resource struct {
	entry *Entry

	units string

	currentType  sample.Kind
	currentValue *sample.Sample

	pushedType  sample.Kind
	pushedValue *sample.Sample

	source       *Resource
	destinations []*Resource

	override *override
	deflt    *override

	jsonExample string

	pushHandlers *handler.List
	pollHandlers *handler.List

	configChanging bool

	io  *ioState
	obs *obsState
}

func newResource(e *Entry) *Resource {
	return &Resource{
		entry:        e,
		currentType:  sample.Trigger,
		pushHandlers: handler.NewList(),
		pollHandlers: handler.NewList(),
	}
}

// Entry returns the resource's owning tree Entry.
func (r *Resource) Entry() *Entry { return r.entry }

// Units returns the resource's declared units ("" = unspecified).
func (r *Resource) Units() string { return r.units }

// CurrentType returns the kind of the resource's current value.
func (r *Resource) CurrentType() sample.Kind { return r.currentType }

// CurrentValue returns the resource's current value, or nil if none.
func (r *Resource) CurrentValue() *sample.Sample { return r.currentValue }

// PushedValue returns the most recently pushed value, even if it was
// filtered/rejected downstream.
func (r *Resource) PushedValue() *sample.Sample { return r.pushedValue }

// ConfigChanging reports whether the resource is currently quiesced by an
// open update window.
func (r *Resource) ConfigChanging() bool { return r.configChanging }

// Source returns the resource's route source, or nil.
func (r *Resource) Source() *Resource { return r.source }

// Destinations returns the resource's route destinations, in insertion
// order. Do not mutate the returned slice.
func (r *Resource) Destinations() []*Resource { return r.destinations }

// IsIO reports whether r is an Input or Output (has a fixed data type).
func (r *Resource) IsIO() bool { return r.io != nil }

// IsObservation reports whether r is an Observation.
func (r *Resource) IsObservation() bool { return r.obs != nil }

// PushHandlers returns the resource's push-handler list.
func (r *Resource) PushHandlers() *handler.List { return r.pushHandlers }

// PollHandlers returns the resource's poll-handler list.
func (r *Resource) PollHandlers() *handler.List { return r.pollHandlers }

// FixedKind returns the fixed I/O data kind; only meaningful if IsIO().
func (r *Resource) FixedKind() sample.Kind { return r.io.fixed }

// acceptable reports whether a resource accepts kind k: Observation and
// Placeholder resources accept any kind; I/O resources only their fixed kind.
func (r *Resource) acceptable(k sample.Kind) bool {
	if r.io == nil {
		return true
	}
	return r.io.fixed == k
}

// hasAdminSettings reports whether any of {source, destinations non-empty,
// override, default, push-handlers non-empty} is set. Observations always
// carry admin settings by definition (their filters are admin state even
// with none of the above set).
func (r *Resource) hasAdminSettings() bool {
	if r.obs != nil {
		return true
	}
	return r.source != nil || len(r.destinations) != 0 || r.override != nil ||
		r.deflt != nil || !r.pushHandlers.Empty()
}

// markConfigChanging marks r configChanging if the tree's update window is
// open, per the "direct field writes... additionally set configChanging"
// rule applied to every admin op.
func (r *Resource) markConfigChanging() {
	if r.entry.tree.UpdateWindowOpen() {
		r.configChanging = true
	}
}

// setUnitsFlexible is the direct field write admin ops use; Input/Output units
// are fixed at creation and never touched here except by the creator.
func (r *Resource) setUnitsFlexible(units string) {
	if r.io != nil {
		return // I/O units are fixed at creation
	}
	r.units = units
}

// setSource implements setSource(dst=r, src).
func (r *Resource) setSource(src *Resource) error {
	if r.source == src {
		return nil
	}

	if r.source != nil {
		r.source.removeDestination(r)
	}

	if src != nil {
		if reachable(r, src) {
			return newErr(CycleDetected, "setting source would create a routing cycle")
		}
	}

	r.source = src
	if src != nil {
		src.destinations = append(src.destinations, r)
		if src.jsonExample != "" && r.acceptable(sample.JSON) {
			r.jsonExample = src.jsonExample
		}
	}

	if r.entry.tree.UpdateWindowOpen() {
		r.configChanging = true
		if src != nil {
			src.configChanging = true
		}
	}

	if src == nil && r.io == nil {
		r.units = ""
	}

	return nil
}

func (r *Resource) removeDestination(dst *Resource) {
	for i, d := range r.destinations {
		if d == dst {
			r.destinations = append(r.destinations[:i], r.destinations[i+1:]...)
			return
		}
	}
}

// reachable reports whether target is reachable from `from` by following
// destinations transitively. setSource(dst, src) calls it as
// reachable(dst, src): if src is already downstream of dst, attaching the
// edge src->dst would close a routing cycle.
func reachable(from, target *Resource) bool {
	seen := map[*Resource]bool{}
	var visit func(*Resource) bool
	visit = func(n *Resource) bool {
		if n == target {
			return true
		}
		if seen[n] {
			return false
		}
		seen[n] = true
		for _, d := range n.destinations {
			if visit(d) {
				return true
			}
		}
		return false
	}
	return visit(from)
}

// push implements the push/route/filter pipeline.
func (r *Resource) push(kind sample.Kind, units string, s *sample.Sample) error {
	defer s.Release()

	r.pushedType = kind
	r.pushedValue = s.Retain()

	if r.configChanging {
		return nil
	}

	if r.obs != nil {
		accepted, newKind, newSample := r.obs.runPipeline(r, kind, s)
		if !accepted {
			newSample.Release()
			return nil
		}
		kind, s = newKind, newSample
		defer s.Release()
		s.Retain()
	}

	if r.override != nil && r.acceptable(r.override.kind) {
		overridden := r.override.value.WithTimestamp(s.Timestamp())
		kind = r.override.kind
		s = overridden
		units = ""
	} else if r.io != nil {
		if r.units != "" && units != "" && units != r.units {
			return newErr(FormatError, "units mismatch: resource has %q, push has %q", r.units, units)
		}
		if kind != r.io.fixed {
			s = s.Coerce(r.io.fixed)
			kind = r.io.fixed
		}
	} else if units != "" {
		r.units = units
	}

	return r.updateCurrentValue(kind, s)
}

// Push is the externally visible entry point for a fresh client push
// (timestamp resolution and refcounting are handled by sample.New*).
func (r *Resource) Push(kind sample.Kind, units string, s *sample.Sample) error {
	if !r.acceptable(kind) && r.io != nil {
		return newErr(FormatError, "resource requires kind %s, got %s", r.io.fixed, kind)
	}
	return r.push(kind, units, s.Retain())
}

// updateCurrentValue implements updateCurrentValue.
func (r *Resource) updateCurrentValue(kind sample.Kind, s *sample.Sample) error {
	if !r.acceptable(kind) {
		return newErr(FormatError, "value kind %s not acceptable for this resource", kind)
	}

	r.currentType = kind
	r.currentValue = s

	if kind == sample.JSON {
		if r.jsonExample == "" {
			r.jsonExample = s.Text()
		}
	} else {
		r.jsonExample = ""
	}

	for _, d := range r.destinations {
		_ = d.push(kind, r.units, s.Retain())
	}

	r.pushHandlers.CallAll(kind, s)
	return nil
}

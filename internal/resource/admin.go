package resource

import (
	"github.com/rakunlabs/datahub/internal/handler"
	"github.com/rakunlabs/datahub/internal/sample"
)

// SetSource wires r's route source, enforcing the acyclic routing
// invariant (see setSource in resource.go).
func (r *Resource) SetSource(src *Resource) error { return r.setSource(src) }

// SetOverride installs an admin-forced value. If the override's kind is
// acceptable it is immediately forced as the current value.
func (r *Resource) SetOverride(kind sample.Kind, v *sample.Sample) error {
	if !r.acceptable(kind) {
		return newErr(FormatError, "override kind %s not acceptable", kind)
	}
	r.override = &override{kind: kind, value: v}
	r.markConfigChanging()
	return r.updateCurrentValue(kind, v.WithTimestamp(v.Timestamp()))
}

// RemoveOverride clears the override. If a default is now "winning" (no
// compatible pushed value), it is applied as the current value.
func (r *Resource) RemoveOverride() {
	r.override = nil
	r.markConfigChanging()
	r.applyWinningDefault()
}

// SetDefault installs a fallback value. If it is currently "winning" (no
// override, no compatible pushed value) it updates currentValue
// immediately.
func (r *Resource) SetDefault(kind sample.Kind, v *sample.Sample) error {
	if !r.acceptable(kind) {
		return newErr(FormatError, "default kind %s not acceptable", kind)
	}
	r.deflt = &override{kind: kind, value: v}
	r.markConfigChanging()
	if r.override == nil && r.pushedValue == nil {
		return r.updateCurrentValue(kind, v.WithTimestamp(v.Timestamp()))
	}
	return nil
}

// RemoveDefault clears the default value.
func (r *Resource) RemoveDefault() {
	r.deflt = nil
	r.markConfigChanging()
}

func (r *Resource) applyWinningDefault() {
	if r.override != nil || r.pushedValue != nil || r.deflt == nil {
		return
	}
	_ = r.updateCurrentValue(r.deflt.kind, r.deflt.value.WithTimestamp(r.entry.tree.Now()))
}

// MarkOptional clears the IoPoint mandatory flag.
func (r *Resource) MarkOptional() {
	if r.io != nil {
		r.io.optional = true
	}
	r.markConfigChanging()
}

// SetJSONExample sets the example JSON document propagated to JSON-capable
// destinations via setSource.
func (r *Resource) SetJSONExample(v string) {
	r.jsonExample = v
	r.markConfigChanging()
}

// --- Observation-only admin ops (C6) ---

func (r *Resource) SetMinPeriod(p float64) {
	r.obs.minPeriod = p
	r.markConfigChanging()
}

func (r *Resource) SetHighLimit(v float64) {
	r.obs.highLimit = &v
	r.markConfigChanging()
}

func (r *Resource) RemoveHighLimit() {
	r.obs.highLimit = nil
	r.markConfigChanging()
}

func (r *Resource) SetLowLimit(v float64) {
	r.obs.lowLimit = &v
	r.markConfigChanging()
}

func (r *Resource) RemoveLowLimit() {
	r.obs.lowLimit = nil
	r.markConfigChanging()
}

func (r *Resource) SetChangeBy(v float64) {
	r.obs.changeBy = v
	r.markConfigChanging()
}

func (r *Resource) SetTransform(t Transform, window int) {
	r.obs.transform = t
	r.obs.transformWindow = window
	r.markConfigChanging()
}

// SetTransformScript sets the goja expression evaluated over the
// transform window when the transform kind is TransformScript. The
// window's numeric samples are bound as the variable "values"; the
// expression's result is coerced to a number.
func (r *Resource) SetTransformScript(expr string) {
	r.obs.transformScript = expr
	r.markConfigChanging()
}

func (r *Resource) SetBufferMaxCount(n int) {
	r.obs.bufferMax = n
	for len(r.obs.buffer) > n {
		r.obs.buffer[0].Release()
		r.obs.buffer = r.obs.buffer[1:]
	}
	r.markConfigChanging()
}

func (r *Resource) SetBufferBackupPeriod(p float64) {
	r.obs.backupPeriod = p
	r.markConfigChanging()
}

func (r *Resource) SetJSONExtraction(spec string) {
	r.obs.jsonExtraction = spec
	r.markConfigChanging()
}

// moveAdminSettings migrates units (unless dst is I/O, which keeps its
// declared units/type), pushed value, the source edge,
// the destination list, override, default, configChanging, and all
// handler lists from src to dst. When dst is I/O, the current value is
// moved only if its type matches the fixed I/O type.
func moveAdminSettings(dst, src *Resource) {
	if dst.io == nil {
		dst.units = src.units
	}

	dst.pushedType = src.pushedType
	dst.pushedValue = src.pushedValue

	if src.source != nil {
		src.source.removeDestination(src)
		dst.source = src.source
		src.source.destinations = append(src.source.destinations, dst)
	}

	for _, d := range src.destinations {
		d.source = dst
	}
	dst.destinations = append(dst.destinations, src.destinations...)

	dst.override = src.override
	dst.deflt = src.deflt
	dst.configChanging = src.configChanging

	MoveHandlers(dst, src)

	if dst.io != nil {
		if src.currentValue != nil && src.currentType == dst.io.fixed {
			dst.currentType = src.currentType
			dst.currentValue = src.currentValue
		}
	} else {
		dst.currentType = src.currentType
		dst.currentValue = src.currentValue
	}
}

// MoveHandlers transfers src's push/poll handler lists onto dst, wholesale
// (see package handler's MoveAll).
func MoveHandlers(dst, src *Resource) {
	handler.MoveAll(dst.pushHandlers, src.pushHandlers)
	handler.MoveAll(dst.pollHandlers, src.pollHandlers)
}

package resource

import "github.com/rakunlabs/datahub/internal/sample"

// GetInput implements Get{Input} with the entry-promotion table: an
// existing Input entry is idempotent if (dataType, units) match, else
// Duplicate; existing Output/Observation entries are also rejected with
// Duplicate; Namespace and
// Placeholder entries promote (Placeholder carries its settings over).
func (t *Tree) GetInput(path string, kind sample.Kind, units string) (*Resource, error) {
	return t.getIO(path, kind, units, false)
}

// GetOutput implements Get{Output}.
func (t *Tree) GetOutput(path string, kind sample.Kind, units string) (*Resource, error) {
	return t.getIO(path, kind, units, true)
}

func (t *Tree) getIO(path string, kind sample.Kind, units string, isOutput bool) (*Resource, error) {
	e, err := t.GetEntry(t.root, path)
	if err != nil {
		return nil, err
	}

	wantKind := Input
	if isOutput {
		wantKind = Output
	}

	switch e.kind {
	case Namespace:
		r := newResource(e)
		r.io = &ioState{isOutput: isOutput, fixed: kind}
		r.units = units
		r.currentType = kind
		e.kind = wantKind
		e.resource = r
		t.notify(e, wantKind, Added)
		return r, nil

	case Placeholder:
		r := e.resource
		r.io = &ioState{isOutput: isOutput, fixed: kind}
		if units != "" {
			r.units = units
		}
		e.kind = wantKind
		t.notify(e, wantKind, Added)
		return r, nil

	case wantKind:
		r := e.resource
		if r.io.fixed != kind || r.units != units {
			return nil, newErr(Duplicate, "entry %q exists with a different type/units", path)
		}
		return r, nil

	default:
		return nil, newErr(Duplicate, "entry %q exists as %s", path, e.kind)
	}
}

// GetObservation implements CreateObs: idempotent promotion from
// Namespace/Placeholder, idempotent no-op if already an Observation,
// Duplicate against Input/Output.
func (t *Tree) GetObservation(path string) (*Resource, error) {
	e, err := t.GetEntry(t.root, path)
	if err != nil {
		return nil, err
	}

	switch e.kind {
	case Namespace:
		r := newResource(e)
		r.obs = newObsState()
		e.kind = Observation
		e.resource = r
		t.notify(e, Observation, Added)
		if err := r.RestoreBuffer(); err != nil {
			return nil, err
		}
		return r, nil

	case Placeholder:
		r := e.resource
		r.obs = newObsState()
		e.kind = Observation
		t.notify(e, Observation, Added)
		if err := r.RestoreBuffer(); err != nil {
			return nil, err
		}
		return r, nil

	case Observation:
		return e.resource, nil

	default:
		return nil, newErr(Duplicate, "entry %q exists as %s", path, e.kind)
	}
}

// GetResource implements GetResource: a bare placeholder-or-existing
// resource lookup used by admin routes (SetSource, SetOverride, ...) that
// accept any resource kind. It creates a Placeholder if nothing exists
// yet.
func (t *Tree) GetResource(path string) (*Resource, error) {
	e, err := t.GetEntry(t.root, path)
	if err != nil {
		return nil, err
	}
	switch e.kind {
	case Namespace:
		r := newResource(e)
		e.kind = Placeholder
		e.resource = r
		t.notify(e, Placeholder, Added)
		return r, nil
	default:
		return e.resource, nil
	}
}

// FindResource resolves an existing resource without creating anything,
// refusing namespaces (Unsupported) and missing entries (NotFound).
func (t *Tree) FindResource(path string) (*Resource, error) {
	e, err := t.FindEntry(t.root, path)
	if err != nil {
		return nil, err
	}
	if e.kind == Namespace {
		return nil, newErr(Unsupported, "%q is a namespace, not a resource", path)
	}
	return e.resource, nil
}

// DeleteResource implements deletion: an I/O resource either vanishes
// entirely (no children, no admin settings) or becomes a Placeholder
// (settings preserved); an Observation always drops its Resource state
// and reverts the Entry to Namespace.
func (t *Tree) DeleteResource(path string) error {
	e, err := t.FindEntry(t.root, path)
	if err != nil {
		return err
	}
	if e.kind == Namespace {
		return newErr(Unsupported, "%q is a namespace", path)
	}

	r := e.resource

	if e.kind == Observation {
		_ = r.PurgeBuffer()
		for _, s := range r.obs.buffer {
			s.Release()
		}
		if r.obs.lastAcceptedVal != nil {
			r.obs.lastAcceptedVal.Release()
		}
		e.resource = nil
		e.kind = Namespace
		t.notify(e, Observation, Removed)
		t.collapseEmptyAncestors(e)
		return nil
	}

	// Input/Output.
	wasKind := e.kind
	if len(e.children) == 0 && !r.hasAdminSettings() {
		e.resource = nil
		e.kind = Namespace
		t.notify(e, wasKind, Removed)
		t.collapseEmptyAncestors(e)
		return nil
	}

	r.io = nil
	r.currentType = sample.Trigger
	r.currentValue = nil
	e.kind = Placeholder
	t.notify(e, wasKind, Removed)
	return nil
}

// CloseSession implements session close: a depth-first walk of the
// session's namespace subtree where each I/O either becomes a Placeholder
// or is removed, exactly as DeleteResource would.
func (t *Tree) CloseSession(base *Entry) {
	var collect func(*Entry) []*Entry
	collect = func(e *Entry) []*Entry {
		var out []*Entry
		for _, c := range e.children {
			out = append(out, collect(c)...)
		}
		if e.kind == Input || e.kind == Output {
			out = append(out, e)
		}
		return out
	}

	for _, e := range collect(base) {
		_ = t.DeleteResource(e.Path())
	}
}

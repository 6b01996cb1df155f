package resource

import "strings"

// EntryKind is the polymorphic kind of a tree node (C7 Entry).
type EntryKind int

const (
	Namespace EntryKind = iota
	Placeholder
	Input
	Output
	Observation
)

func (k EntryKind) String() string {
	switch k {
	case Namespace:
		return "namespace"
	case Placeholder:
		return "placeholder"
	case Input:
		return "input"
	case Output:
		return "output"
	case Observation:
		return "observation"
	default:
		return "unknown"
	}
}

// MaxNameLen is the entry name limit (63 bytes + NUL in the original).
const MaxNameLen = 63

// ChangeEvent identifies a tree-change notification kind.
type ChangeEvent int

const (
	Added ChangeEvent = iota
	Removed
)

// ChangeHandler is invoked whenever a resource is added to or removed from
// the tree.
type ChangeHandler func(absolutePath string, kind EntryKind, event ChangeEvent)

// Entry is a node in the resource tree. Attributes are: name, parent
// back-reference, ordered children, kind, and an optional Resource.
type Entry struct {
	name     string
	parent   *Entry
	children []*Entry
	kind     EntryKind
	resource *Resource

	tree *Tree
}

// Name returns the entry's own segment name ("" for root).
func (e *Entry) Name() string { return e.name }

// Kind returns the entry's current kind.
func (e *Entry) Kind() EntryKind { return e.kind }

// Resource returns the entry's resource, or nil if Kind() == Namespace.
func (e *Entry) Resource() *Resource { return e.resource }

// Children returns the entry's direct children in insertion order.
func (e *Entry) Children() []*Entry { return e.children }

// Path returns the absolute, '/'-separated path from the root.
func (e *Entry) Path() string {
	if e.parent == nil {
		return "/"
	}
	var parts []string
	for n := e; n.parent != nil; n = n.parent {
		parts = append([]string{n.name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

func (e *Entry) childByName(name string) *Entry {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Clock resolves the current wall-clock reading in seconds since the Unix
// epoch; overridable for tests.
type Clock func() float64

// Tree is the hierarchical namespace of Entries (C7). It also carries the
// cross-cutting state the push pipeline needs: the global update-window
// flag (C8 owns start/end, but C4's push checks it on every call) and the
// optional BufferStore collaborator for observation backups.
type Tree struct {
	root     *Entry
	handlers []ChangeHandler

	clock       Clock
	updateOpen  bool
	store       BufferStore
	touchedObs  map[*Resource]bool // observations backed up since the last EndUpdate
}

// NewTree constructs an empty tree with just a root namespace.
func NewTree(clock Clock) *Tree {
	if clock == nil {
		clock = func() float64 { return 0 }
	}
	t := &Tree{clock: clock, touchedObs: map[*Resource]bool{}}
	t.root = &Entry{kind: Namespace, tree: t}
	return t
}

// SetBufferStore installs the BufferStore collaborator used by
// observation buffer backup/restore/purge.
func (t *Tree) SetBufferStore(s BufferStore) { t.store = s }

// Now returns the tree's current time reading.
func (t *Tree) Now() float64 { return t.clock() }

// UpdateWindowOpen reports whether the tree is between StartUpdate and
// EndUpdate.
func (t *Tree) UpdateWindowOpen() bool { return t.updateOpen }

// StartUpdate opens the update window: subsequent admin writes mark
// touched resources configChanging.
func (t *Tree) StartUpdate() { t.updateOpen = true }

// EndUpdate closes the update window, clears configChanging on every
// resource by tree-walk, replays the last held push on each resource that
// received one, and returns the observations whose buffers were backed up
// since the previous EndUpdate. It does not purge any backup itself.
func (t *Tree) EndUpdate() []*Resource {
	t.updateOpen = false
	var touched []*Resource
	t.walk(t.root, func(e *Entry) {
		r := e.resource
		if r == nil || !r.configChanging {
			return
		}
		r.configChanging = false
		if r.pushedValue != nil {
			// Replay-last-only: deliver the held push now that the
			// window has closed.
			r.push(r.pushedType, r.units, r.pushedValue.Retain())
		}
	})
	for r := range t.touchedObs {
		touched = append(touched, r)
	}
	t.touchedObs = map[*Resource]bool{}
	return touched
}

func (t *Tree) walk(e *Entry, fn func(*Entry)) {
	fn(e)
	for _, c := range e.children {
		t.walk(c, fn)
	}
}

// Root returns the tree's root entry.
func (t *Tree) Root() *Entry { return t.root }

// AddChangeHandler registers a tree-change callback.
func (t *Tree) AddChangeHandler(h ChangeHandler) { t.handlers = append(t.handlers, h) }

func (t *Tree) notify(e *Entry, kind EntryKind, ev ChangeEvent) {
	path := e.Path()
	for _, h := range t.handlers {
		h(path, kind, ev)
	}
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, newErr(BadParameter, "empty path")
	}
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if s == "" {
			return nil, newErr(BadParameter, "empty path segment in %q", path)
		}
		if len(s) > MaxNameLen {
			return nil, newErr(BadParameter, "path segment %q exceeds %d bytes", s, MaxNameLen)
		}
		if strings.ContainsAny(s, ".[]") {
			return nil, newErr(BadParameter, "path segment %q contains reserved character", s)
		}
	}
	return segs, nil
}

// FindEntry walks from base along path without creating missing entries.
func (t *Tree) FindEntry(base *Entry, path string) (*Entry, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := base
	for _, s := range segs {
		next := cur.childByName(s)
		if next == nil {
			return nil, newErr(NotFound, "no entry at %q", path)
		}
		cur = next
	}
	return cur, nil
}

// GetEntry walks from base along path, creating missing Namespace entries
// for every segment, the last one included; GetInput, GetOutput,
// GetObservation and GetResource then promote the last entry's kind.
func (t *Tree) GetEntry(base *Entry, path string) (*Entry, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	cur := base
	for _, s := range segs {
		next := cur.childByName(s)
		if next == nil {
			next = &Entry{name: s, parent: cur, kind: Namespace, tree: t}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur, nil
}

// collapseEmptyAncestors removes e and then transitively collapses any
// ancestor Namespace left with no children and no resource. Holders
// outside the tree (such as a session's namespace pointer) are not
// tracked and do not keep an entry alive.
func (t *Tree) collapseEmptyAncestors(e *Entry) {
	for e != nil && e.parent != nil {
		if len(e.children) != 0 || e.resource != nil {
			return
		}
		parent := e.parent
		for i, c := range parent.children {
			if c == e {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		e = parent
	}
}

// removeEntry detaches e from the tree and collapses any ancestor
// namespaces left empty.
func (t *Tree) removeEntry(e *Entry) {
	if e.parent == nil {
		return
	}
	parent := e.parent
	for i, c := range parent.children {
		if c == e {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	t.collapseEmptyAncestors(parent)
}

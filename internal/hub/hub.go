// Package hub implements the C8 facade: client-session to namespace
// mapping, update-window start/end, and the typed query/io/admin
// operations surfaced to external collaborators.
package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/datahub/internal/handler"
	"github.com/rakunlabs/datahub/internal/resource"
	"github.com/rakunlabs/datahub/internal/sample"
)

// Re-export the resource package's error taxonomy so callers only need to
// import one package for the whole wire boundary.
type (
	ErrKind = resource.ErrKind
	Error   = resource.Error
)

const (
	NotFound      = resource.NotFound
	Unavailable   = resource.Unavailable
	FormatError   = resource.FormatError
	Duplicate     = resource.Duplicate
	Overflow      = resource.Overflow
	Unsupported   = resource.Unsupported
	BadParameter  = resource.BadParameter
	NoMemory      = resource.NoMemory
	CycleDetected = resource.CycleDetected
	CommError     = resource.CommError
)

// Session represents one client's identity: its mapped namespace
// (/app/<name>) and an opaque session id.
type Session struct {
	ID        string
	AppPath   string
	namespace *resource.Entry
}

// UpdateStartEndHandler is invoked when StartUpdate/EndUpdate fire.
type UpdateStartEndHandler func(started bool)

// Hub is the C8 facade wrapping the resource tree.
type Hub struct {
	mu sync.Mutex

	tree *resource.Tree

	sessions map[string]*Session

	updateHandlers []UpdateStartEndHandler

	store resource.BufferStore
}

// New constructs a Hub backed by a fresh resource tree. clock resolves
// "now" for timestamping and throttle/backup scheduling; store is the
// optional BufferStore collaborator for observation backups.
func New(clock resource.Clock, store resource.BufferStore) *Hub {
	t := resource.NewTree(clock)
	if store != nil {
		t.SetBufferStore(store)
	}
	return &Hub{
		tree:     t,
		sessions: map[string]*Session{},
		store:    store,
	}
}

// Tree exposes the underlying resource tree, mostly for diagnostics
// rendering and tests.
func (h *Hub) Tree() *resource.Tree { return h.tree }

// OpenSession maps a new client to its per-app namespace, creating it if
// necessary.
func (h *Hub) OpenSession(appName string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ns, err := h.tree.GetEntry(h.tree.Root(), "/app/"+appName)
	if err != nil {
		return nil, err
	}

	s := &Session{ID: ulid.Make().String(), AppPath: ns.Path(), namespace: ns}
	h.sessions[s.ID] = s
	return s, nil
}

// Session looks up a previously opened session by id.
func (h *Hub) Session(sessionID string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return nil, &Error{Kind: NotFound, Msg: "unknown session"}
	}
	return s, nil
}

// CloseSession runs the session-close cleanup over the session's
// namespace subtree and forgets the session.
func (h *Hub) CloseSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return &Error{Kind: NotFound, Msg: "unknown session"}
	}
	h.tree.CloseSession(s.namespace)
	delete(h.sessions, sessionID)
	logi.Ctx(ctx).Info("session closed", "session", sessionID, "app_path", s.AppPath)
	return nil
}

func (h *Hub) resolvePath(s *Session, path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	return s.AppPath + "/" + path
}

// StartUpdate opens the global update window: subsequent admin writes
// mark touched resources configChanging, quiescing their pushes until
// EndUpdate.
func (h *Hub) StartUpdate(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tree.StartUpdate()
	for _, cb := range h.updateHandlers {
		cb(true)
	}
	logi.Ctx(ctx).Debug("update window opened")
}

// EndUpdate closes the update window, replays held pushes, and returns the
// observations whose buffers were backed up since the previous EndUpdate.
// It does not purge any backup; orphaned backups are removed only by
// PurgeOrphanedBackups, which internal/scheduler runs on its own interval.
func (h *Hub) EndUpdate(ctx context.Context) []*resource.Resource {
	h.mu.Lock()
	defer h.mu.Unlock()
	touched := h.tree.EndUpdate()
	for _, cb := range h.updateHandlers {
		cb(false)
	}
	logi.Ctx(ctx).Debug("update window closed", "touched_observations", len(touched))
	return touched
}

// AddUpdateStartEndHandler registers a callback invoked on StartUpdate and
// EndUpdate.
func (h *Hub) AddUpdateStartEndHandler(cb UpdateStartEndHandler) {
	h.updateHandlers = append(h.updateHandlers, cb)
}

// AddResourceTreeChangeHandler registers a callback invoked whenever a
// resource is added to or removed from the tree.
func (h *Hub) AddResourceTreeChangeHandler(cb resource.ChangeHandler) {
	h.tree.AddChangeHandler(cb)
}

// --- io surface ---

func (h *Hub) CreateInput(s *Session, path string, kind sample.Kind, units string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.tree.GetInput(h.resolvePath(s, path), kind, units)
	return err
}

func (h *Hub) CreateOutput(s *Session, path string, kind sample.Kind, units string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.tree.GetOutput(h.resolvePath(s, path), kind, units)
	return err
}

func (h *Hub) DeleteResource(s *Session, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tree.DeleteResource(h.resolvePath(s, path))
}

func (h *Hub) Push(s *Session, path string, kind sample.Kind, ts float64, raw any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.tree.FindResource(h.resolvePath(s, path))
	if err != nil {
		return err
	}

	smp, err := buildSample(kind, ts, raw)
	if err != nil {
		return err
	}
	return r.Push(kind, "", smp)
}

func buildSample(kind sample.Kind, ts float64, raw any) (*sample.Sample, error) {
	switch kind {
	case sample.Trigger:
		return sample.NewTrigger(ts), nil
	case sample.Bool:
		v, ok := raw.(bool)
		if !ok {
			return nil, &Error{Kind: FormatError, Msg: "expected bool payload"}
		}
		return sample.NewBool(ts, v), nil
	case sample.Number:
		v, ok := raw.(float64)
		if !ok {
			return nil, &Error{Kind: FormatError, Msg: "expected numeric payload"}
		}
		return sample.NewNumber(ts, v), nil
	case sample.String:
		v, ok := raw.(string)
		if !ok {
			return nil, &Error{Kind: FormatError, Msg: "expected string payload"}
		}
		return sample.NewString(ts, v), nil
	case sample.JSON:
		v, ok := raw.(string)
		if !ok {
			return nil, &Error{Kind: FormatError, Msg: "expected JSON text payload"}
		}
		return sample.NewJSON(ts, v), nil
	default:
		return nil, &Error{Kind: BadParameter, Msg: fmt.Sprintf("unknown kind %v", kind)}
	}
}

func (h *Hub) AddPushHandler(s *Session, path string, kind sample.Kind, cb handler.Callback, ctx any) (handler.Ref, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.tree.FindResource(h.resolvePath(s, path))
	if err != nil {
		return handler.Ref{}, err
	}
	return r.PushHandlers().Add(kind, cb, ctx), nil
}

func (h *Hub) RemovePushHandler(s *Session, path string, ref handler.Ref) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.tree.FindResource(h.resolvePath(s, path))
	if err != nil {
		return err
	}
	return r.PushHandlers().Remove(ref)
}

func (h *Hub) MarkOptional(s *Session, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.tree.FindResource(h.resolvePath(s, path))
	if err != nil {
		return err
	}
	r.MarkOptional()
	return nil
}

// --- admin surface ---

func (h *Hub) CreateObs(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.tree.GetObservation(path)
	return err
}

func (h *Hub) DeleteObs(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tree.DeleteResource(path)
}

func (h *Hub) SetSource(destPath, srcPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dst, err := h.tree.GetResource(destPath)
	if err != nil {
		return err
	}
	if srcPath == "" {
		return dst.SetSource(nil)
	}
	src, err := h.tree.FindResource(srcPath)
	if err != nil {
		return err
	}
	return dst.SetSource(src)
}

func (h *Hub) resource(path string) (*resource.Resource, error) {
	return h.tree.FindResource(path)
}

// PurgeOrphanedBackups deletes buffer-store backups whose observation no
// longer exists in the tree, returning the number purged. It is driven by
// the scheduler's periodic GC pass, not called from the push/admin path.
func (h *Hub) PurgeOrphanedBackups(ctx context.Context) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store == nil {
		return 0
	}

	paths, err := h.store.ListPaths()
	if err != nil {
		logi.Ctx(ctx).Error("buffer gc: list backup paths failed", "error", err)
		return 0
	}

	purged := 0
	for _, p := range paths {
		e, err := h.tree.FindEntry(h.tree.Root(), p)
		if err == nil && e != nil && e.Kind() == resource.Observation {
			continue
		}
		if err := h.store.Purge(p); err != nil {
			logi.Ctx(ctx).Error("buffer gc: purge failed", "path", p, "error", err)
			continue
		}
		purged++
	}
	return purged
}

func (h *Hub) SetMinPeriod(path string, p float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetMinPeriod(p)
	return nil
}

func (h *Hub) SetHighLimit(path string, v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetHighLimit(v)
	return nil
}

func (h *Hub) SetLowLimit(path string, v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetLowLimit(v)
	return nil
}

func (h *Hub) SetChangeBy(path string, v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetChangeBy(v)
	return nil
}

func (h *Hub) SetTransform(path string, t resource.Transform, window int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetTransform(t, window)
	return nil
}

func (h *Hub) SetTransformScript(path, expr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetTransformScript(expr)
	return nil
}

func (h *Hub) SetBufferMaxCount(path string, n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetBufferMaxCount(n)
	return nil
}

func (h *Hub) SetBufferBackupPeriod(path string, p float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetBufferBackupPeriod(p)
	return nil
}

func (h *Hub) SetJSONExtraction(path, spec string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetJSONExtraction(spec)
	return nil
}

func (h *Hub) SetOverride(path string, kind sample.Kind, v *sample.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	return r.SetOverride(kind, v)
}

func (h *Hub) RemoveOverride(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.RemoveOverride()
	return nil
}

func (h *Hub) SetDefault(path string, kind sample.Kind, v *sample.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	return r.SetDefault(kind, v)
}

func (h *Hub) RemoveDefault(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.RemoveDefault()
	return nil
}

// SetBooleanDefault, SetNumericDefault, SetStringDefault and SetJsonDefault
// are typed conveniences over SetDefault for callers that already have a
// native value rather than a *sample.Sample.

func (h *Hub) SetBooleanDefault(path string, v bool) error {
	return h.SetDefault(path, sample.Bool, sample.NewBool(0, v))
}

func (h *Hub) SetNumericDefault(path string, v float64) error {
	return h.SetDefault(path, sample.Number, sample.NewNumber(0, v))
}

func (h *Hub) SetStringDefault(path string, v string) error {
	return h.SetDefault(path, sample.String, sample.NewString(0, v))
}

func (h *Hub) SetJsonDefault(path string, v string) error {
	return h.SetDefault(path, sample.JSON, sample.NewJSON(0, v))
}

func (h *Hub) SetJSONExample(path, v string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.SetJSONExample(v)
	return nil
}

func (h *Hub) RemoveHighLimit(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.RemoveHighLimit()
	return nil
}

func (h *Hub) RemoveLowLimit(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return err
	}
	r.RemoveLowLimit()
	return nil
}

// --- query surface ---

func (h *Hub) GetMin(path string, startTime float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	return r.QueryMin(h.tree.Now(), startTime), nil
}

func (h *Hub) GetMax(path string, startTime float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	return r.QueryMax(h.tree.Now(), startTime), nil
}

func (h *Hub) GetMean(path string, startTime float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	return r.QueryMean(h.tree.Now(), startTime), nil
}

func (h *Hub) GetStdDev(path string, startTime float64) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	return r.QueryStdDev(h.tree.Now(), startTime), nil
}

func (h *Hub) ReadBufferJSON(path string, startAfter float64) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return "", err
	}
	if !r.IsObservation() {
		return "", &Error{Kind: Unsupported, Msg: "not an observation"}
	}
	return r.ReadBufferJSON(startAfter), nil
}

// GetNumeric resolves path and returns its current numeric value.
func (h *Hub) GetNumeric(path string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	if r.CurrentValue() == nil {
		return 0, &Error{Kind: Unavailable, Msg: "no current value"}
	}
	if r.CurrentType() != sample.Number {
		return 0, &Error{Kind: FormatError, Msg: "current value is not numeric"}
	}
	return r.CurrentValue().Number(), nil
}

// GetBoolean resolves path and returns its current boolean value.
func (h *Hub) GetBoolean(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return false, err
	}
	if r.CurrentValue() == nil {
		return false, &Error{Kind: Unavailable, Msg: "no current value"}
	}
	if r.CurrentType() != sample.Bool {
		return false, &Error{Kind: FormatError, Msg: "current value is not boolean"}
	}
	return r.CurrentValue().Bool(), nil
}

// GetString resolves path and returns its current string value.
func (h *Hub) GetString(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return "", err
	}
	if r.CurrentValue() == nil {
		return "", &Error{Kind: Unavailable, Msg: "no current value"}
	}
	if r.CurrentType() != sample.String {
		return "", &Error{Kind: FormatError, Msg: "current value is not a string"}
	}
	return r.CurrentValue().Text(), nil
}

// GetJSON resolves path and returns its current JSON value.
func (h *Hub) GetJSON(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return "", err
	}
	if r.CurrentValue() == nil {
		return "", &Error{Kind: Unavailable, Msg: "no current value"}
	}
	if r.CurrentType() != sample.JSON {
		return "", &Error{Kind: FormatError, Msg: "current value is not JSON"}
	}
	return r.CurrentValue().Text(), nil
}

// GetTimestamp resolves path and returns its current value's timestamp.
func (h *Hub) GetTimestamp(path string) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	if r.CurrentValue() == nil {
		return 0, &Error{Kind: Unavailable, Msg: "no current value"}
	}
	return r.CurrentValue().Timestamp(), nil
}

// GetDataType resolves path and returns its current value's kind.
func (h *Hub) GetDataType(path string) (sample.Kind, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return 0, err
	}
	return r.CurrentType(), nil
}

// GetUnits resolves path and returns its declared units.
func (h *Hub) GetUnits(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.resource(path)
	if err != nil {
		return "", err
	}
	return r.Units(), nil
}

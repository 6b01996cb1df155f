package resource

import (
	"math"
	"strconv"

	"github.com/rakunlabs/datahub/internal/jsonpath"
	"github.com/rakunlabs/datahub/internal/sample"
)

// obsState holds the C6 Observation specialization.
type obsState struct {
	buffer     []*sample.Sample // FIFO ring, oldest first
	bufferMax  int

	minPeriod float64 // 0 = disabled
	lowLimit  *float64
	highLimit *float64
	changeBy  float64 // 0 = disabled

	transform       Transform
	transformWindow int
	transformScript string
	jsonExtraction  string

	backupPeriod   float64 // 0 = disabled
	lastBackupTime float64

	hasLastAccepted  bool
	lastAcceptedTs   float64
	lastAcceptedVal  *sample.Sample
}

func newObsState() *obsState {
	return &obsState{bufferMax: 0, transform: TransformNone}
}

// runPipeline implements the Observation-specific portion of the push
// step 2: JSON extraction, buffer append + backup scheduling, transform,
// and acceptance filter. It returns whether the sample should continue on
// to step 3, and the (possibly replaced) kind/sample to continue with.
// The returned sample is already Retain()'d for the caller to own.
func (o *obsState) runPipeline(r *Resource, kind sample.Kind, s *sample.Sample) (bool, sample.Kind, *sample.Sample) {
	if o.jsonExtraction != "" {
		if kind != sample.JSON {
			return false, kind, s.Retain()
		}
		newKind, text, err := extractValue(s.Text(), o.jsonExtraction)
		if err != nil {
			return false, kind, s.Retain()
		}
		kind = newKind
		s = sampleFromExtraction(s.Timestamp(), newKind, text)
	} else {
		s = s.Retain()
	}

	o.appendBuffer(s)
	r.scheduleBackupIfDue()

	if o.transform != TransformNone && kind == sample.Number && len(o.buffer) > 0 {
		transformed := o.applyTransform()
		s.Release()
		s = transformed
	}

	if !o.accept(kind, s) {
		return false, kind, s
	}

	o.hasLastAccepted = true
	o.lastAcceptedTs = s.Timestamp()
	if o.lastAcceptedVal != nil {
		o.lastAcceptedVal.Release()
	}
	o.lastAcceptedVal = s.Retain()

	return true, kind, s
}

// extractValue maps a jsonpath TokenKind/text pair onto the sample.Kind
// and raw value text a new sample should carry.
func extractValue(text, spec string) (sample.Kind, string, error) {
	var (
		tk  jsonpath.TokenKind
		tt  string
		err error
	)
	if jsonpath.IsScript(spec) {
		tk, tt, err = jsonpath.ExtractScript(text, spec)
	} else {
		tk, tt, err = jsonpath.Extract(text, spec)
	}
	if err != nil {
		return 0, "", err
	}
	switch tk {
	case jsonpath.Null:
		return sample.Trigger, "", nil
	case jsonpath.Boolean:
		return sample.Bool, tt, nil
	case jsonpath.Number:
		return sample.Number, tt, nil
	case jsonpath.String:
		return sample.String, tt, nil
	default: // Object, Array
		return sample.JSON, tt, nil
	}
}

func sampleFromExtraction(ts float64, kind sample.Kind, text string) *sample.Sample {
	switch kind {
	case sample.Trigger:
		return sample.NewTrigger(ts)
	case sample.Bool:
		return sample.NewBool(ts, text == "true")
	case sample.Number:
		return sample.NewNumber(ts, jsonpath.ConvertToNumber(text))
	case sample.String:
		return sample.NewString(ts, text)
	default:
		return sample.NewJSON(ts, text)
	}
}

// appendBuffer inserts s into the ring buffer, evicting the oldest entry
// on overflow. Insertion and eviction are both O(1) amortized.
func (o *obsState) appendBuffer(s *sample.Sample) {
	if o.bufferMax <= 0 {
		return
	}
	if len(o.buffer) >= o.bufferMax {
		o.buffer[0].Release()
		o.buffer = o.buffer[1:]
	}
	o.buffer = append(o.buffer, s.Retain())
}

// transformWindowSlice returns the tail of the buffer covered by
// transformWindow (0/unset means the whole buffer).
func (o *obsState) transformWindowSlice() []*sample.Sample {
	if o.transformWindow <= 0 || o.transformWindow >= len(o.buffer) {
		return o.buffer
	}
	return o.buffer[len(o.buffer)-o.transformWindow:]
}

// applyTransform computes Mean/StdDev/Max/Min, or evaluates the Script
// transform's expression, over the current buffer window. A window with no
// numeric sample is identity (returns the most recent sample retained);
// runPipeline skips the transform entirely while the buffer is empty.
func (o *obsState) applyTransform() *sample.Sample {
	window := o.transformWindowSlice()
	var nums []float64
	ts := o.lastBufferTimestamp()
	for _, s := range window {
		if s.Kind() == sample.Number {
			nums = append(nums, s.Number())
		}
	}
	if len(nums) == 0 {
		if len(window) > 0 {
			return window[len(window)-1].Retain()
		}
		return sample.NewNumber(ts, math.NaN())
	}

	switch o.transform {
	case TransformMean:
		return sample.NewNumber(ts, mean(nums))
	case TransformStdDev:
		return sample.NewNumber(ts, stddev(nums))
	case TransformMax:
		return sample.NewNumber(ts, maxOf(nums))
	case TransformMin:
		return sample.NewNumber(ts, minOf(nums))
	case TransformScript:
		if o.transformScript == "" {
			return sample.NewNumber(ts, mean(nums))
		}
		v, err := jsonpath.EvaluateTransformScript(nums, o.transformScript)
		if err != nil {
			return sample.NewNumber(ts, math.NaN())
		}
		return sample.NewNumber(ts, v)
	default:
		return window[len(window)-1].Retain()
	}
}

func (o *obsState) lastBufferTimestamp() float64 {
	if len(o.buffer) == 0 {
		return 0
	}
	return o.buffer[len(o.buffer)-1].Timestamp()
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64) float64 {
	m := mean(v)
	var sum float64
	for _, x := range v {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(v)))
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// accept implements the filter: range/band-stop, throttle, dead-band.
func (o *obsState) accept(kind sample.Kind, s *sample.Sample) bool {
	if kind == sample.Number {
		v := s.Number()
		if o.highLimit != nil && o.lowLimit != nil && *o.lowLimit > *o.highLimit {
			// band-stop: reject values inside (high, low)
			if v > *o.highLimit && v < *o.lowLimit {
				return false
			}
		} else {
			if o.highLimit != nil && v > *o.highLimit {
				return false
			}
			if o.lowLimit != nil && v < *o.lowLimit {
				return false
			}
		}
	}

	if o.minPeriod > 0 && o.hasLastAccepted {
		if (s.Timestamp() - o.lastAcceptedTs) < o.minPeriod {
			return false
		}
	}

	if o.changeBy > 0 && o.hasLastAccepted {
		switch kind {
		case sample.Number:
			if math.Abs(s.Number()-o.lastAcceptedVal.Number()) < o.changeBy {
				return false
			}
		case sample.Trigger:
			// trigger always accepts
		default:
			if sampleEqual(s, o.lastAcceptedVal) {
				return false
			}
		}
	}

	return true
}

func sampleEqual(a, b *sample.Sample) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case sample.Bool:
		return a.Bool() == b.Bool()
	case sample.String, sample.JSON:
		return a.Text() == b.Text()
	default:
		return false
	}
}

// scheduleBackupIfDue persists the buffer when bufferMax>0, backupPeriod>0,
// and the last backup is stale enough, recording the observation in the
// set that the next EndUpdate returns.
func (r *Resource) scheduleBackupIfDue() {
	o := r.obs
	if o.bufferMax <= 0 || o.backupPeriod <= 0 {
		return
	}
	now := r.entry.tree.Now()
	if now-o.lastBackupTime < o.backupPeriod {
		return
	}
	if err := r.backupBuffer(now); err == nil {
		r.entry.tree.touchedObs[r] = true
	}
}

func (r *Resource) backupBuffer(now float64) error {
	store := r.entry.tree.store
	if store == nil {
		return nil
	}
	recs := make([]BufferSample, 0, len(r.obs.buffer))
	for _, s := range r.obs.buffer {
		rec := BufferSample{Timestamp: s.Timestamp(), Kind: s.Kind()}
		switch s.Kind() {
		case sample.Bool:
			rec.Bool = s.Bool()
		case sample.Number:
			rec.Number = s.Number()
		case sample.String, sample.JSON:
			rec.Text = s.Text()
		}
		recs = append(recs, rec)
	}
	r.obs.lastBackupTime = now
	return store.Save(r.entry.Path(), recs, now)
}

// RestoreBuffer loads a previously backed-up sequence into a freshly
// created observation, called at observation creation.
func (r *Resource) RestoreBuffer() error {
	store := r.entry.tree.store
	if store == nil || r.obs == nil {
		return nil
	}
	recs, lastBackup, err := store.Load(r.entry.Path())
	if err != nil {
		return err
	}
	for _, rec := range recs {
		var s *sample.Sample
		switch rec.Kind {
		case sample.Trigger:
			s = sample.NewTrigger(rec.Timestamp)
		case sample.Bool:
			s = sample.NewBool(rec.Timestamp, rec.Bool)
		case sample.Number:
			s = sample.NewNumber(rec.Timestamp, rec.Number)
		case sample.String:
			s = sample.NewString(rec.Timestamp, rec.Text)
		case sample.JSON:
			s = sample.NewJSON(rec.Timestamp, rec.Text)
		}
		r.obs.buffer = append(r.obs.buffer, s)
	}
	r.obs.lastBackupTime = lastBackup
	return nil
}

// PurgeBuffer deletes any backup for this observation; it is called at
// Observation deletion. Closing the update window does not purge backups.
func (r *Resource) PurgeBuffer() error {
	store := r.entry.tree.store
	if store == nil || r.obs == nil {
		return nil
	}
	return store.Purge(r.entry.Path())
}

const thirtyYearsSeconds = 30 * 365.25 * 24 * 3600

func resolveStartTime(now, startTime float64) float64 {
	if startTime < thirtyYearsSeconds {
		return now - startTime
	}
	return startTime
}

func (o *obsState) samplesSince(now, startTime float64) []float64 {
	resolved := resolveStartTime(now, startTime)
	var out []float64
	for _, s := range o.buffer {
		if s.Kind() == sample.Number && s.Timestamp() > resolved {
			out = append(out, s.Number())
		}
	}
	return out
}

// QueryMin/Max/Mean/StdDev implement the buffer-backed statistics
// queries, restricted to numeric samples with timestamp > resolved start.
func (r *Resource) QueryMean(now, startTime float64) float64 {
	v := r.obs.samplesSince(now, startTime)
	if len(v) == 0 {
		return math.NaN()
	}
	return mean(v)
}

func (r *Resource) QueryStdDev(now, startTime float64) float64 {
	v := r.obs.samplesSince(now, startTime)
	if len(v) == 0 {
		return math.NaN()
	}
	return stddev(v)
}

func (r *Resource) QueryMax(now, startTime float64) float64 {
	v := r.obs.samplesSince(now, startTime)
	if len(v) == 0 {
		return math.NaN()
	}
	return maxOf(v)
}

func (r *Resource) QueryMin(now, startTime float64) float64 {
	v := r.obs.samplesSince(now, startTime)
	if len(v) == 0 {
		return math.NaN()
	}
	return minOf(v)
}

// ReadBufferJSON renders the buffer-read output format: a JSON array
// of {"t":<seconds>,"v":<value>} (trigger omits "v"; t is printed with
// three decimals, see formatMillis), restricted to samples
// with timestamp > startAfter.
func (r *Resource) ReadBufferJSON(startAfter float64) string {
	out := "["
	first := true
	for _, s := range r.obs.buffer {
		if s.Timestamp() <= startAfter {
			continue
		}
		if !first {
			out += ","
		}
		first = false
		out += `{"t":` + formatMillis(s.Timestamp())
		if s.Kind() != sample.Trigger {
			out += `,"v":` + s.ConvertToJSON()
		}
		out += "}"
	}
	out += "]"
	return out
}

// formatMillis renders a seconds-since-epoch timestamp at millisecond
// precision (%.3f-style). The unit stays seconds; only the displayed
// precision is at millisecond granularity.
func formatMillis(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 3, 64)
}

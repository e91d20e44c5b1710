// Package listing builds the distance-annotated, filtered list of one POI
// kind for a session. A Builder is owned by its session's UI loop: every
// method except the fetch itself must be called on that loop.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/filter"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/metrics"
)

var (
	// ErrDetached is passed to a Load callback whose builder was detached
	// before the fetch came back.
	ErrDetached = errors.New("list builder detached")
	// ErrSuperseded is passed to a Load callback whose result was dropped
	// because a newer Load started.
	ErrSuperseded = errors.New("list load superseded")
)

// State is the list's position in its Loading -> Populated -> Filtered cycle.
type State int

const (
	StateLoading State = iota + 1
	StatePopulated
	StateFiltered
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePopulated:
		return "populated"
	case StateFiltered:
		return "filtered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateLoading, StatePopulated, StateFiltered} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Source fetches a full snapshot of one POI kind. It is called off the
// UI loop.
type Source interface {
	Fetch(ctx context.Context, kind campus.Kind) ([]*campus.POI, error)
}

// Poster marshals work onto the UI loop. drop runs instead of fn when the
// loop stops first.
type Poster interface {
	PostOrDrop(fn, drop func())
}

// Notifier surfaces one-shot messages to the user.
type Notifier interface {
	Error(msg string)
}

// Options configures a Builder.
type Options struct {
	Kind     campus.Kind
	Source   Source
	Loop     Poster
	Notices  Notifier
	Log      *slog.Logger
	OnChange func()
}

// Builder holds the live collection for one kind.
type Builder struct {
	kind     campus.Kind
	source   Source
	loop     Poster
	notices  Notifier
	log      *slog.Logger
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc

	state    State
	previous State
	all      []*campus.POI
	view     []*campus.POI

	query    string
	region   filter.Region
	category string

	ref    geo.Coordinate
	hasRef bool

	gen      uint64
	attached bool
}

// New creates an attached builder in the Loading state with an empty
// collection. Call Load to populate it.
func New(opts Options) *Builder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Builder{
		kind:     opts.Kind,
		source:   opts.Source,
		loop:     opts.Loop,
		notices:  opts.Notices,
		log:      opts.Log.With("kind", opts.Kind.String()),
		onChange: opts.OnChange,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateLoading,
		previous: StateLoading,
		attached: true,
	}
}

// Kind returns the POI kind this builder lists.
func (b *Builder) Kind() campus.Kind { return b.kind }

// SetReference sets the position distances are measured from on the next
// Load. Already annotated distances are kept.
func (b *Builder) SetReference(pos geo.Coordinate) {
	b.ref = pos
	b.hasRef = true
}

// SetFilter changes the region and category applied by the next Load.
func (b *Builder) SetFilter(region filter.Region, category string) {
	b.region = region
	b.category = category
}

// Load fetches a fresh snapshot and rebuilds the collection from empty.
// done is called exactly once: nil on success, an error wrapping
// campus.ErrNetwork on fetch failure, ErrSuperseded or ErrDetached when
// the result was dropped. done runs on the UI loop unless the loop has
// already stopped.
func (b *Builder) Load(done func(error)) {
	done = once(done)
	if !b.attached {
		done(ErrDetached)
		return
	}

	b.gen++
	gen := b.gen
	if b.state != StateLoading {
		b.previous = b.state
	}
	b.state = StateLoading

	ctx := b.ctx
	go func() {
		pois, err := b.source.Fetch(ctx, b.kind)
		b.loop.PostOrDrop(
			func() { b.finish(gen, pois, err, done) },
			func() { done(ErrDetached) },
		)
	}()
}

// once guards done so no path can call it twice.
func once(done func(error)) func(error) {
	if done == nil {
		return func(error) {}
	}
	var o sync.Once
	return func(err error) {
		o.Do(func() { done(err) })
	}
}

func (b *Builder) finish(gen uint64, pois []*campus.POI, err error, done func(error)) {
	if !b.attached {
		metrics.ListLoads.WithLabelValues(b.kind.String(), "detached").Inc()
		done(ErrDetached)
		return
	}
	if gen != b.gen {
		metrics.ListLoads.WithLabelValues(b.kind.String(), "stale").Inc()
		done(ErrSuperseded)
		return
	}

	if err != nil {
		if !errors.Is(err, campus.ErrNetwork) {
			err = fmt.Errorf("%w: %w", campus.ErrNetwork, err)
		}
		metrics.ListLoads.WithLabelValues(b.kind.String(), "error").Inc()
		b.log.Warn("list load failed", "err", err)
		b.state = b.previous
		if b.notices != nil {
			b.notices.Error(fmt.Sprintf("Could not load %s list. Check your connection.", b.kind))
		}
		done(err)
		return
	}

	b.rebuild(pois)
	metrics.ListLoads.WithLabelValues(b.kind.String(), "ok").Inc()
	b.changed()
	done(nil)
}

// rebuild replaces the collection with pois: annotate each, filter by
// region and category, then re-apply the active query.
func (b *Builder) rebuild(pois []*campus.POI) {
	annotated := make([]*campus.POI, 0, len(pois))
	for _, p := range pois {
		if p == nil {
			continue
		}
		if b.hasRef {
			if _, err := campus.Annotate(p, b.ref); err != nil {
				metrics.CoordinateErrors.WithLabelValues(b.kind.String()).Inc()
				b.log.Info("skipping distance for poi", "id", p.ID, "err", err)
			}
		}
		annotated = append(annotated, p)
	}

	b.all = filter.Filter(annotated, b.region, b.category)
	b.state = StatePopulated
	b.view = b.all
	if b.query != "" {
		b.applyQuery()
	}
}

// Search narrows the populated collection by name. An empty query restores
// the full collection without fetching. While loading, the query is stored
// and applied when the load completes.
func (b *Builder) Search(query string) {
	b.query = query
	if b.state == StateLoading {
		return
	}

	if query == "" {
		b.state = StatePopulated
		b.view = b.all
	} else {
		b.applyQuery()
	}
	b.changed()
}

func (b *Builder) applyQuery() {
	b.view = filter.Search(b.all, b.query)
	b.state = StateFiltered
}

func (b *Builder) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// State returns the current state.
func (b *Builder) State() State { return b.state }

// Query returns the active search query.
func (b *Builder) Query() string { return b.query }

// Items returns a copy of the visible collection.
func (b *Builder) Items() []campus.POI {
	out := make([]campus.POI, len(b.view))
	for i, p := range b.view {
		out[i] = *p
	}
	return out
}

// Placeable returns the visible POIs that can be put on the map.
func (b *Builder) Placeable() []*campus.POI {
	out := make([]*campus.POI, 0, len(b.view))
	for _, p := range b.view {
		if p.Placeable() {
			out = append(out, p)
		}
	}
	return out
}

// Attached reports whether the builder still accepts results.
func (b *Builder) Attached() bool { return b.attached }

// Detach drops pending and future results and cancels an in-flight fetch.
func (b *Builder) Detach() {
	b.attached = false
	b.cancel()
}

// Snapshot is a read-only view of a builder for API responses.
type Snapshot struct {
	Kind     string        `json:"kind"`
	State    State         `json:"state"`
	Query    string        `json:"query,omitempty"`
	Region   filter.Region `json:"region,omitempty"`
	Category string        `json:"category,omitempty"`
	Items    []campus.POI  `json:"items"`
}

// Snapshot captures the builder's current view.
func (b *Builder) Snapshot() Snapshot {
	return Snapshot{
		Kind:     b.kind.String(),
		State:    b.state,
		Query:    b.query,
		Region:   b.region,
		Category: b.category,
		Items:    b.Items(),
	}
}

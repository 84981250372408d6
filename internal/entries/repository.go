// Package entries holds the group-scoped repositories. Each repository keeps
// an in-memory mirror of one table for the group it is bound to and applies
// mutations to the mirror only after the gateway confirms them.
package entries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// State of a repository's mirror.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrSuperseded is returned by Reload when a newer reload replaced it.
	ErrSuperseded = errors.New("reload superseded")
	// ErrUnbound is returned by mutations on a repository with no group.
	ErrUnbound = errors.New("repository not bound to a group")
)

// Record is satisfied by pointers to the domain records, which all embed core.Meta.
type Record[T any] interface {
	*T
	Metadata() *core.Meta
}

type validator interface {
	Validate() error
}

// Clock and IDs are injectable for tests.
type (
	Clock func() time.Time
	IDs   func() string
)

type spec[T any] struct {
	table string
	// order adds the canonical ORDER BY to a group query.
	order func(gateway.Query) gateway.Query
	// less is the same order applied to the mirror.
	less func(a, b *T) bool
}

// Repository mirrors one table for one group.
type Repository[T any, P Record[T]] struct {
	gw     gateway.Gateway
	logger *log.Logger
	spec   spec[T]
	now    Clock
	newID  IDs

	mu      sync.RWMutex
	groupID string
	state   State
	err     error
	items   []T
	gen     uint64
	cancel  context.CancelFunc
	// mutations confirmed while a reload is in flight, replayed on its result
	pending []func()
}

func newRepository[T any, P Record[T]](gw gateway.Gateway, logger *log.Logger, s spec[T], o options) *Repository[T, P] {
	return &Repository[T, P]{
		gw:     gw,
		logger: logger.WithComponent(log.ComponentEntries).With(log.FieldTable, s.table),
		spec:   s,
		now:    o.now,
		newID:  o.newID,
	}
}

// Reload fetches the group's rows and replaces the mirror. A reload already
// in flight is cancelled and its result discarded. An empty groupID unbinds
// the repository without a remote call.
func (r *Repository[T, P]) Reload(ctx context.Context, groupID string) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.gen++
	gen := r.gen
	r.pending = nil
	if groupID != r.groupID {
		r.items = nil
	}
	r.groupID = groupID
	r.err = nil
	if groupID == "" {
		r.state = Idle
		r.items = nil
		r.mu.Unlock()
		return nil
	}
	r.state = Loading
	loadCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	q := r.spec.order(gateway.From(r.spec.table).Eq(gateway.ColGroupID, groupID))
	rows, err := r.gw.Select(loadCtx, q)
	var items []T
	if err == nil {
		items, err = gateway.DecodeAll[T](r.spec.table, rows)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return ErrSuperseded
	}
	r.cancel = nil
	pending := r.pending
	r.pending = nil
	if err != nil {
		r.state = Failed
		r.err = err
		r.logger.ErrorContext(ctx, "Failed to load entries", r.fields(groupID, "", log.OpReload, err)...)
		return fmt.Errorf("load %s: %w", r.spec.table, err)
	}
	r.sortItems(items)
	r.items = items
	for _, f := range pending {
		f()
	}
	r.state = Loaded
	r.logger.DebugContext(ctx, "Entries loaded", log.FieldGroupID, groupID, log.FieldCount, len(items))
	return nil
}

func (r *Repository[T, P]) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Err returns the error of the last failed load.
func (r *Repository[T, P]) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Repository[T, P]) GroupID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groupID
}

// Items returns a copy of the mirror in canonical order.
func (r *Repository[T, P]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]T(nil), r.items...)
}

func (r *Repository[T, P]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Find looks up a mirrored record by id.
func (r *Repository[T, P]) Find(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.items[i], true
	}
	var zero T
	return zero, false
}

// Filter returns the mirrored records matching pred, in canonical order.
func (r *Repository[T, P]) Filter(pred func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []T
	for _, it := range r.items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Create stamps ownership fields on item, inserts it and adds the stored
// record to the mirror.
func (r *Repository[T, P]) Create(ctx context.Context, actor string, item T) (T, error) {
	out, err := r.CreateMany(ctx, actor, []T{item})
	if err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// CreateMany inserts all items in one gateway call. Either every item is
// stored and mirrored or none is.
func (r *Repository[T, P]) CreateMany(ctx context.Context, actor string, items []T) ([]T, error) {
	groupID, err := r.begin(actor)
	if err != nil {
		return nil, err
	}

	rows := make([]gateway.Row, 0, len(items))
	for i := range items {
		item := items[i]
		r.stamp(&item, groupID, actor)
		if err := validate(item); err != nil {
			return nil, err
		}
		row, err := gateway.Encode(r.spec.table, item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	stored, err := r.gw.Insert(ctx, r.spec.table, rows)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to create entries", r.fields(groupID, actor, log.OpCreate, err)...)
		return nil, err
	}
	out, err := gateway.DecodeAll[T](r.spec.table, stored)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode created entries", r.fields(groupID, actor, log.OpCreate, err)...)
		return nil, err
	}

	r.apply(groupID, func() {
		for _, it := range out {
			r.replace(it)
		}
	})
	return out, nil
}

// Update merges fields into the record with the given id. When the record is
// mirrored the merged result is validated before the remote call, and the
// mirror takes the stored result afterwards. An id missing from the mirror
// is still sent to the gateway, scoped to the bound group; the mirror is left
// unchanged. Rows of other groups answer gateway.ErrNotFound.
func (r *Repository[T, P]) Update(ctx context.Context, actor, id string, fields gateway.Row) (T, error) {
	var zero T
	groupID, err := r.begin(actor)
	if err != nil {
		return zero, err
	}

	if cur, ok := r.Find(id); ok {
		if err := r.checkMerge(cur, fields); err != nil {
			return zero, err
		}
	}

	row, err := r.gw.Update(ctx, r.spec.table, id, fields, gateway.Where(gateway.ColGroupID, groupID))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update entry", r.fields(groupID, actor, log.OpUpdate, err, log.FieldRecordID, id)...)
		return zero, err
	}
	out, err := gateway.Decode[T](r.spec.table, row)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode updated entry", r.fields(groupID, actor, log.OpUpdate, err, log.FieldRecordID, id)...)
		return zero, err
	}

	r.apply(groupID, func() {
		if i := r.indexOf(id); i >= 0 {
			r.items = append(r.items[:i], r.items[i+1:]...)
			r.put(out)
		}
	})
	return out, nil
}

// Delete removes the record remotely, then from the mirror. Ids of other
// groups are left alone.
func (r *Repository[T, P]) Delete(ctx context.Context, actor, id string) error {
	groupID, err := r.begin(actor)
	if err != nil {
		return err
	}
	if err := r.gw.Delete(ctx, r.spec.table, id, gateway.Where(gateway.ColGroupID, groupID)); err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete entry", r.fields(groupID, actor, log.OpDelete, err, log.FieldRecordID, id)...)
		return err
	}
	r.apply(groupID, func() {
		if i := r.indexOf(id); i >= 0 {
			r.items = append(r.items[:i], r.items[i+1:]...)
		}
	})
	return nil
}

// Upsert stores item keyed by the conflict columns. The gateway keeps the id
// of an existing row, which then replaces its mirrored copy.
func (r *Repository[T, P]) Upsert(ctx context.Context, actor string, item T, conflict []string) (T, error) {
	var zero T
	groupID, err := r.begin(actor)
	if err != nil {
		return zero, err
	}
	r.stamp(&item, groupID, actor)
	if err := validate(item); err != nil {
		return zero, err
	}
	row, err := gateway.Encode(r.spec.table, item)
	if err != nil {
		return zero, err
	}

	stored, err := r.gw.Upsert(ctx, r.spec.table, row, conflict)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to upsert entry", r.fields(groupID, actor, log.OpUpsert, err)...)
		return zero, err
	}
	out, err := gateway.Decode[T](r.spec.table, stored)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to decode upserted entry", r.fields(groupID, actor, log.OpUpsert, err)...)
		return zero, err
	}

	r.apply(groupID, func() { r.replace(out) })
	return out, nil
}

// begin checks the preconditions shared by every mutation and returns the
// group the mutation is bound to.
func (r *Repository[T, P]) begin(actor string) (string, error) {
	if actor == "" {
		return "", core.ErrNotAuthenticated
	}
	groupID := r.GroupID()
	if groupID == "" {
		return "", ErrUnbound
	}
	return groupID, nil
}

func (r *Repository[T, P]) stamp(item *T, groupID, actor string) {
	m := P(item).Metadata()
	m.ID = r.newID()
	m.GroupID = groupID
	m.CreatedBy = actor
	m.CreatedAt = r.now().UTC()
}

// checkMerge validates cur with fields applied.
func (r *Repository[T, P]) checkMerge(cur T, fields gateway.Row) error {
	row, err := gateway.Encode(r.spec.table, cur)
	if err != nil {
		return err
	}
	for k, v := range fields {
		row[k] = v
	}
	merged, err := gateway.Decode[T](r.spec.table, row)
	if err != nil {
		var de *core.DecodeError
		if errors.As(err, &de) {
			return fmt.Errorf("%w: %s", core.ErrValidation, de.Error())
		}
		return err
	}
	return validate(merged)
}

// apply runs f under the write lock when the repository is still bound to
// groupID. Results for a group the caller has switched away from are dropped.
// While a reload is loading, f is also kept and replayed on its snapshot, so
// f must be idempotent.
func (r *Repository[T, P]) apply(groupID string, f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groupID != groupID {
		return
	}
	f()
	if r.state == Loading {
		r.pending = append(r.pending, f)
	}
}

// replace puts it in the mirror, dropping any copy with the same id. Callers
// hold the write lock.
func (r *Repository[T, P]) replace(it T) {
	if i := r.indexOf(P(&it).Metadata().ID); i >= 0 {
		r.items = append(r.items[:i], r.items[i+1:]...)
	}
	r.put(it)
}

// put inserts it at its canonical position. Callers hold the write lock.
func (r *Repository[T, P]) put(it T) {
	i := sort.Search(len(r.items), func(i int) bool { return r.spec.less(&it, &r.items[i]) })
	r.items = append(r.items, it)
	copy(r.items[i+1:], r.items[i:])
	r.items[i] = it
}

// indexOf returns the mirror index of id or -1. Callers hold the lock.
func (r *Repository[T, P]) indexOf(id string) int {
	for i := range r.items {
		if P(&r.items[i]).Metadata().ID == id {
			return i
		}
	}
	return -1
}

func (r *Repository[T, P]) sortItems(items []T) {
	sort.SliceStable(items, func(i, j int) bool { return r.spec.less(&items[i], &items[j]) })
}

func (r *Repository[T, P]) fields(groupID, actor, op string, err error, extra ...any) []any {
	f := log.NewFields().
		WithGroup(groupID, actor).
		WithOperation(op).
		WithError(err)
	return append(f.ToSlice(), extra...)
}

func validate(v any) error {
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}

type options struct {
	now   Clock
	newID IDs
	idle  time.Duration
}

// Option customizes repositories built by a Workspace.
type Option func(*options)

// WithClock overrides the time source used for stamps and derived queries.
func WithClock(c Clock) Option { return func(o *options) { o.now = c } }

// WithIDs overrides id generation.
func WithIDs(f IDs) Option { return func(o *options) { o.newID = f } }

// WithIdleTTL sets how long a Registry keeps an unused workspace.
func WithIdleTTL(d time.Duration) Option { return func(o *options) { o.idle = d } }

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString, idle: DefaultIdleTTL}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

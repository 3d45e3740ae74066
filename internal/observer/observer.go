// Package observer keeps a loaded, enriched view of one backend's favorites
// and reloads it whenever the favorites change.
package observer

import (
	"context"
	"sync"

	"streamflux/internal/enrichment"
	"streamflux/internal/events"
	"streamflux/internal/favorites"
	"streamflux/internal/models"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateErrored State = "errored"
)

// Store is the read side of favorites.Store.
type Store interface {
	GetFavorites() []models.FavoriteRecord
	FetchFavoritesFromDB(ctx context.Context, userID string) ([]models.FavoriteRecord, error)
}

// Enricher is satisfied by enrichment.Pipeline.
type Enricher interface {
	Enrich(ctx context.Context, records []models.FavoriteRecord, batchSize int) []models.FavoriteRecord
	NeedsEnrichment(records []models.FavoriteRecord) bool
}

// Snapshot is what a view renders. Records survive a failed reload.
type Snapshot struct {
	State   State
	Records []models.FavoriteRecord
	Err     error
}

type Option func(*Observer)

func WithBatchSize(n int) Option {
	return func(o *Observer) { o.batchSize = n }
}

// WithoutEnrichment turns the observer into a plain reader, for views that
// show no movie metadata.
func WithoutEnrichment() Option {
	return func(o *Observer) { o.enrich = false }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *Observer) { o.logger = logger }
}

type Observer struct {
	store     Store
	pipeline  Enricher
	backend   favorites.Backend
	bus       *events.Bus
	logger    *logrus.Logger
	batchSize int
	enrich    bool

	mu          sync.Mutex
	settled     *sync.Cond
	started     uint64
	finished    uint64
	seq         uint64
	state       State
	records     []models.FavoriteRecord
	err         error
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	background  sync.WaitGroup
}

func New(store Store, pipeline Enricher, backend favorites.Backend, bus *events.Bus, opts ...Option) *Observer {
	o := &Observer{
		store:     store,
		pipeline:  pipeline,
		backend:   backend,
		bus:       bus,
		logger:    logrus.New(),
		batchSize: enrichment.DefaultBatchSize,
		enrich:    pipeline != nil,
		state:     StateIdle,
	}
	o.settled = sync.NewCond(&o.mu)
	for _, opt := range opts {
		opt(o)
	}
	if o.pipeline == nil {
		o.enrich = false
	}
	return o
}

// Mount subscribes to change events and performs the first load. ctx bounds
// the lifetime of the background reloads.
func (o *Observer) Mount(ctx context.Context) error {
	o.mu.Lock()
	if o.unsubscribe != nil {
		o.mu.Unlock()
		return nil
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.unsubscribe = o.bus.Subscribe(events.FavoritesChangedFor(o.backend.String()), o.onChange)
	o.started++
	o.mu.Unlock()

	defer o.done()
	return o.Load(ctx)
}

// Unmount stops listening and waits for reloads already started.
func (o *Observer) Unmount() {
	o.mu.Lock()
	unsubscribe := o.unsubscribe
	if unsubscribe == nil {
		o.mu.Unlock()
		return
	}
	// cancelled under mu so onChange cannot start a reload after this
	o.cancel()
	o.unsubscribe, o.cancel = nil, nil
	o.mu.Unlock()

	unsubscribe()
	o.background.Wait()
}

func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{State: o.state, Records: models.CloneRecords(o.records), Err: o.err}
}

// Load reads and enriches synchronously. Its result is discarded if a later
// load started before it finished.
func (o *Observer) Load(ctx context.Context) error {
	return o.load(ctx, false)
}

// Wait blocks until as many background loads have finished as had started
// when it was called, the mount load included. Loads finishing out of order
// still count: a later load leaves a snapshot at least as fresh. Signals
// arriving during Wait do not extend it.
func (o *Observer) Wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	target := o.started
	for o.finished < target {
		o.settled.Wait()
	}
}

func (o *Observer) done() {
	o.mu.Lock()
	o.finished++
	o.settled.Broadcast()
	o.mu.Unlock()
}

func (o *Observer) Backend() favorites.Backend {
	return o.backend
}

// onChange runs inside Bus.Publish, so the reload happens elsewhere.
func (o *Observer) onChange() {
	o.mu.Lock()
	ctx := o.ctx
	if ctx == nil || ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	o.started++
	o.background.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.background.Done()
		defer o.done()
		_ = o.load(ctx, true)
	}()
}

func (o *Observer) load(ctx context.Context, fromSignal bool) error {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.state = StateLoading
	o.mu.Unlock()

	log := o.logger.WithFields(logrus.Fields{"backend": o.backend.String(), "load_seq": seq})

	records, err := o.read(ctx)
	if err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if seq != o.seq {
			return err
		}
		o.state = StateErrored
		o.err = err
		log.WithError(err).Warn("Favorites reload failed, keeping previous data")
		return err
	}

	if o.enrich && (!fromSignal || o.pipeline.NeedsEnrichment(records)) {
		records = o.pipeline.Enrich(ctx, records, o.batchSize)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.seq {
		log.WithField("latest_seq", o.seq).Debug("Discarding superseded favorites load")
		return nil
	}
	o.state = StateLoaded
	o.records = backfill(records, o.records)
	o.err = nil
	return nil
}

// backfill keeps fields learned by earlier enrichment when a reload returns
// the raw stored copy of an already enriched record.
func backfill(records, previous []models.FavoriteRecord) []models.FavoriteRecord {
	if len(previous) == 0 {
		return records
	}
	known := make(map[models.Key]models.FavoriteRecord, len(previous))
	for _, r := range previous {
		known[r.Key()] = r
	}
	for i, r := range records {
		if prev, ok := known[r.Key()]; ok {
			records[i] = r.Backfill(prev)
		}
	}
	return records
}

func (o *Observer) read(ctx context.Context) ([]models.FavoriteRecord, error) {
	if !o.backend.IsRemote() {
		return o.store.GetFavorites(), nil
	}
	return o.store.FetchFavoritesFromDB(ctx, o.backend.UserID())
}

package favorites

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"streamflux/internal/events"
	"streamflux/internal/models"
	"streamflux/internal/session"

	"github.com/sirupsen/logrus"
)

const defaultWriteTimeout = 15 * time.Second

// RemoteStore is the per-user document store used once a user is signed in.
type RemoteStore interface {
	FetchAll(ctx context.Context, userID string) ([]models.FavoriteRecord, error)
	Add(ctx context.Context, userID string, record models.FavoriteRecord) error
	Remove(ctx context.Context, userID string, key models.Key) error
}

// LocalCache is the synchronous store used while no user is signed in.
type LocalCache interface {
	Favorites() ([]models.FavoriteRecord, error)
	SetFavorites(records []models.FavoriteRecord) error
}

// Store coordinates reads and toggles across the local cache and the remote
// store. After every mutation it publishes events.FavoritesChanged and the
// mutated backend's events.FavoritesChangedFor channel.
type Store struct {
	local        LocalCache
	remote       RemoteStore
	bus          *events.Bus
	logger       *logrus.Logger
	writeTimeout time.Duration

	mu        sync.Mutex
	fetchSeq  uint64
	snapshots map[string]*snapshot
	writes    sync.WaitGroup
}

// snapshot is the in-memory view of one user's remote set. ops holds the
// toggles a fetch may not reflect yet; they are replayed over fetched data.
type snapshot struct {
	records    []models.FavoriteRecord
	loaded     bool
	appliedSeq uint64
	ops        []*pendingOp
	lastWrite  <-chan struct{}
}

type pendingOp struct {
	record  models.FavoriteRecord
	present bool
	// confirmedAt is the fetch sequence current when the write succeeded;
	// zero while the write is in flight.
	confirmedAt uint64
}

type Option func(*Store)

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) { s.writeTimeout = d }
}

func NewStore(local LocalCache, remote RemoteStore, sc *session.Context, logger *logrus.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store{
		local:        local,
		remote:       remote,
		bus:          sc.Bus,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		snapshots:    make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsFavorite never fails: an unreadable cache or a snapshot that was never
// loaded both count as "not a favorite".
func (s *Store) IsFavorite(b Backend, id int, category models.Category) bool {
	key := models.Key{ID: id, Category: category}

	if !b.IsRemote() {
		records, err := s.local.Favorites()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read local favorites")
			return false
		}
		return indexOf(records, key) >= 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[b.UserID()]
	if !ok {
		return false
	}
	return indexOf(snap.records, key) >= 0
}

// GetFavorites reads the local set. Read failures are logged and yield an
// empty set.
func (s *Store) GetFavorites() []models.FavoriteRecord {
	records, err := s.local.Favorites()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read local favorites")
		return []models.FavoriteRecord{}
	}
	return dedupe(records)
}

// Snapshot returns the held remote set of userID, and false when nothing was
// fetched or toggled for that user yet.
func (s *Store) Snapshot(userID string) ([]models.FavoriteRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, false
	}
	return models.CloneRecords(snap.records), snap.loaded
}

// FetchFavoritesFromDB loads the remote set of userID and makes it the held
// snapshot, unless a fetch that started later was applied first. In that
// case the newer snapshot is returned instead.
func (s *Store) FetchFavoritesFromDB(ctx context.Context, userID string) ([]models.FavoriteRecord, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if s.remote == nil {
		return nil, fmt.Errorf("%w: no remote store configured", ErrRemoteUnavailable)
	}

	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"user_id": userID, "fetch_seq": seq})

	fetched, err := s.remote.FetchAll(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch remote favorites")
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	fetched = dedupe(fetched)

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotFor(userID)
	if seq <= snap.appliedSeq {
		log.WithField("applied_seq", snap.appliedSeq).Debug("Discarding superseded favorites fetch")
		return models.CloneRecords(snap.records), nil
	}

	records := fetched
	kept := snap.ops[:0]
	for _, op := range snap.ops {
		if op.confirmedAt != 0 && op.confirmedAt < seq {
			// the fetch started after this write landed, so it already shows it
			continue
		}
		records = applyOp(records, op)
		kept = append(kept, op)
	}
	snap.ops = kept
	snap.records = records
	snap.loaded = true
	snap.appliedSeq = seq

	log.WithFields(logrus.Fields{"count": len(records), "replayed": len(kept)}).Debug("Remote favorites snapshot updated")
	return models.CloneRecords(records), nil
}

// ToggleFavorite removes the record identified by (ID, Category) if present,
// otherwise inserts a copy of record. The change event is published before
// it returns; the returned Persist completes once the write is durable.
// The only errors are invalid input and local cache failures, and in both
// cases nothing was changed.
func (s *Store) ToggleFavorite(ctx context.Context, b Backend, record models.FavoriteRecord) (*Persist, error) {
	if err := Validate(record); err != nil {
		return nil, err
	}
	record = record.Clone()

	if b.IsRemote() {
		return s.toggleRemote(ctx, b.UserID(), record), nil
	}
	return s.toggleLocal(record)
}

func (s *Store) toggleLocal(record models.FavoriteRecord) (*Persist, error) {
	s.mu.Lock()
	records, err := s.local.Favorites()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to read local favorites: %w", err)
	}

	next, added := toggle(dedupe(records), record)
	if err := s.local.SetFavorites(next); err != nil {
		s.mu.Unlock()
		s.logger.WithError(err).WithField("media_id", record.ID).Warn("Failed to persist local favorites")
		return nil, fmt.Errorf("failed to write local favorites: %w", err)
	}
	s.mu.Unlock()

	s.logToggle("local", record, added)
	s.publish(Local())
	return completedPersist(added, nil), nil
}

func (s *Store) toggleRemote(ctx context.Context, userID string, record models.FavoriteRecord) *Persist {
	s.mu.Lock()
	snap := s.snapshotFor(userID)
	next, added := toggle(snap.records, record)
	snap.records = next

	op := &pendingOp{record: record, present: added}
	snap.ops = append(snap.ops, op)

	p := newPersist(added)
	prev := snap.lastWrite
	snap.lastWrite = p.done
	s.writes.Add(1)
	s.mu.Unlock()

	s.logToggle("remote:"+userID, record, added)
	s.publish(Remote(userID))

	// writes of one user are applied in toggle order
	go func() {
		defer s.writes.Done()
		if prev != nil {
			<-prev
		}
		p.complete(s.persistRemote(ctx, userID, snap, op))
	}()

	return p
}

func (s *Store) persistRemote(ctx context.Context, userID string, snap *snapshot, op *pendingOp) error {
	log := s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"media_id": op.record.ID,
		"category": op.record.Category,
		"added":    op.present,
	})

	if s.remote == nil {
		s.dropOp(snap, op)
		log.Warn("No remote store configured, favorite change not persisted")
		return fmt.Errorf("%w: no remote store configured", ErrRemoteUnavailable)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	var err error
	if op.present {
		err = s.remote.Add(wctx, userID, op.record)
	} else {
		err = s.remote.Remove(wctx, userID, op.record.Key())
	}
	if err != nil {
		// the next fetch shows the remote truth again
		s.dropOp(snap, op)
		log.WithError(err).Warn("Failed to persist favorite change")
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	s.mu.Lock()
	op.confirmedAt = s.fetchSeq
	s.mu.Unlock()

	log.Debug("Favorite change persisted")
	return nil
}

func (s *Store) dropOp(snap *snapshot, op *pendingOp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range snap.ops {
		if o == op {
			snap.ops = append(snap.ops[:i], snap.ops[i+1:]...)
			return
		}
	}
}

// Close waits for in-flight remote writes.
func (s *Store) Close() {
	s.writes.Wait()
}

func (s *Store) snapshotFor(userID string) *snapshot {
	snap, ok := s.snapshots[userID]
	if !ok {
		snap = &snapshot{records: []models.FavoriteRecord{}}
		s.snapshots[userID] = snap
	}
	return snap
}

// publish signals the process-wide channel once, then the backend's own.
func (s *Store) publish(b Backend) {
	s.bus.Publish(events.FavoritesChanged)
	s.bus.Publish(events.FavoritesChangedFor(b.String()))
}

func (s *Store) logToggle(backend string, record models.FavoriteRecord, added bool) {
	s.logger.WithFields(logrus.Fields{
		"backend":  backend,
		"media_id": record.ID,
		"category": record.Category,
		"added":    added,
	}).Info("Favorite toggled")
}

// Validate checks the minimal fields a record must carry to be stored.
func Validate(record models.FavoriteRecord) error {
	switch {
	case record.ID <= 0:
		return &ValidationError{Field: "id"}
	case !record.Category.Valid():
		return &ValidationError{Field: "category"}
	case strings.TrimSpace(record.Title) == "":
		return &ValidationError{Field: "title"}
	case strings.TrimSpace(record.PosterPath) == "":
		return &ValidationError{Field: "poster_path"}
	}
	return nil
}

// toggle returns a new slice; records is never modified.
func toggle(records []models.FavoriteRecord, record models.FavoriteRecord) ([]models.FavoriteRecord, bool) {
	if i := indexOf(records, record.Key()); i >= 0 {
		next := make([]models.FavoriteRecord, 0, len(records)-1)
		next = append(next, records[:i]...)
		return append(next, records[i+1:]...), false
	}
	next := make([]models.FavoriteRecord, 0, len(records)+1)
	next = append(next, records...)
	return append(next, record), true
}

func applyOp(records []models.FavoriteRecord, op *pendingOp) []models.FavoriteRecord {
	present := indexOf(records, op.record.Key()) >= 0
	if present == op.present {
		return records
	}
	next, _ := toggle(records, op.record)
	return next
}

func indexOf(records []models.FavoriteRecord, key models.Key) int {
	for i, r := range records {
		if r.Key() == key {
			return i
		}
	}
	return -1
}

// dedupe keeps the first record of every key and fills its absent fields
// from later duplicates.
func dedupe(records []models.FavoriteRecord) []models.FavoriteRecord {
	out := make([]models.FavoriteRecord, 0, len(records))
	seen := make(map[models.Key]int, len(records))
	for _, r := range records {
		if i, ok := seen[r.Key()]; ok {
			out[i] = out[i].Backfill(r)
			continue
		}
		seen[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}

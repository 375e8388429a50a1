package customization

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"lumen/internal/deviceid"
	"lumen/internal/logging"
	"lumen/internal/lru"
)

const persistTimeout = 5 * time.Second

// Persister is the durable side of the store. Implementations must be safe for
// concurrent use.
type Persister interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]Record, error)
}

// Store is the bounded, access-ordered set of monitor customizations.
type Store struct {
	cache     *lru.Cache[string, Record]
	persister Persister
	logger    *slog.Logger
	restoring atomic.Bool
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store bounded to capacity entries. persister may be nil.
func NewStore(capacity int, persister Persister, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		persister: persister,
		logger:    logging.NewComponentLogger(logger, "customizations"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = lru.New[string, Record](capacity, persistObserver{store: s})
	return s
}

// Load restores persisted records oldest first so recency survives restarts.
// Records that no longer validate are dropped from the persister.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	records, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	s.restoring.Store(true)
	defer s.restoring.Store(false)

	loaded := 0
	for _, rec := range records {
		if !rec.Customization.Valid() || rec.Customization.IsDefault() {
			s.deleteFromPersister(rec.ID)
			continue
		}
		s.cache.Set(deviceid.Fold(rec.ID), rec)
		loaded++
	}
	s.logger.Debug("customizations restored",
		logging.Int("loaded", loaded),
		logging.Int("stored", s.cache.Len()),
	)
	return loaded, nil
}

// Save stores c for id and reports whether an entry now exists. Invalid ranges
// and all-default values clear the entry instead.
func (s *Store) Save(id string, c Customization) bool {
	key := deviceid.Fold(id)
	if key == "" {
		return false
	}
	c.Name = strings.TrimSpace(c.Name)
	if !c.Valid() || c.IsDefault() {
		s.cache.Remove(key)
		return false
	}
	s.cache.Set(key, Record{ID: strings.TrimSpace(id), Customization: c, UpdatedAt: s.now()})
	return true
}

// TryLoad returns the customization for id and marks it most recently used.
func (s *Store) TryLoad(id string) (Customization, bool) {
	rec, ok := s.cache.Get(deviceid.Fold(id))
	if !ok {
		return Customization{}, false
	}
	return rec.Customization, true
}

// Peek returns the customization for id without changing its recency.
func (s *Store) Peek(id string) (Customization, bool) {
	rec, ok := s.cache.Peek(deviceid.Fold(id))
	if !ok {
		return Customization{}, false
	}
	return rec.Customization, true
}

// Remove clears the customization for id.
func (s *Store) Remove(id string) bool {
	return s.cache.Remove(deviceid.Fold(id))
}

// Resize changes the capacity, evicting the least recently used entries.
func (s *Store) Resize(capacity int) {
	s.cache.Resize(capacity)
}

// Len reports the number of stored customizations.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Records returns all entries, most recently used first.
func (s *Store) Records() []Record {
	out := make([]Record, 0, s.cache.Len())
	s.cache.Range(func(_ string, rec Record) bool {
		out = append(out, rec)
		return true
	})
	return out
}

func (s *Store) putToPersister(rec Record) {
	if s.persister == nil || s.restoring.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Put(ctx, rec); err != nil {
		logging.WarnWithContext(s.logger, "customization not persisted", "customization_persist_failed",
			logging.Device(rec.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "customization is lost on restart"),
		)
	}
}

func (s *Store) deleteFromPersister(id string) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Delete(ctx, id); err != nil {
		logging.WarnWithContext(s.logger, "customization removal not persisted", "customization_delete_failed",
			logging.Device(id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.String(logging.FieldImpact, "stale customization may return on restart"),
		)
	}
}

type persistObserver struct {
	store *Store
}

func (o persistObserver) Added(_ string, rec Record) { o.store.putToPersister(rec) }

func (o persistObserver) Removed(_ string, rec Record) { o.store.deleteFromPersister(rec.ID) }

func (o persistObserver) Evicted(_ string, rec Record) {
	o.store.logger.Debug("customization evicted", logging.Device(rec.ID))
	o.store.deleteFromPersister(rec.ID)
}

package cache

import (
	"errors"
	"fmt"

	"streamflux/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	keyPrefix    = "streamflux:"
	favoritesKey = keyPrefix + "favorites"
	profileKey   = keyPrefix + "profile"
)

// Local is the persistent, synchronous store scoped to this installation
// (not to a user). It holds the unauthenticated favorites set and the local
// profile.
type Local struct {
	db *badger.DB
}

func NewLocal(db *badger.DB) *Local {
	return &Local{db: db}
}

// OpenLocal opens (or creates) a badger database in dir.
func OpenLocal(dir string) (*Local, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache at %s: %w", dir, err)
	}
	return NewLocal(db), nil
}

// Favorites returns the stored set in insertion order. An empty store yields
// an empty, non-nil slice.
func (l *Local) Favorites() ([]models.FavoriteRecord, error) {
	records := []models.FavoriteRecord{}
	found, err := l.get(favoritesKey, &records)
	if err != nil {
		return nil, err
	}
	if !found || records == nil {
		return []models.FavoriteRecord{}, nil
	}
	return records, nil
}

func (l *Local) SetFavorites(records []models.FavoriteRecord) error {
	if records == nil {
		records = []models.FavoriteRecord{}
	}
	return l.set(favoritesKey, records)
}

// Profile returns the stored profile, or nil when none was saved yet.
func (l *Local) Profile() (*models.UserProfile, error) {
	var profile models.UserProfile
	found, err := l.get(profileKey, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

func (l *Local) SetProfile(profile models.UserProfile) error {
	return l.set(profileKey, profile)
}

func (l *Local) get(key string, dst any) (bool, error) {
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return true, nil
}

func (l *Local) set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return nil
	})
}

func (l *Local) Close() error {
	return l.db.Close()
}

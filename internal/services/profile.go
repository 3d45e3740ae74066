package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"streamflux/internal/models"

	"github.com/sirupsen/logrus"
)

var ErrCountryAlreadySet = errors.New("country can only be set once")

// ProfileStore persists the single local profile.
type ProfileStore interface {
	Profile() (*models.UserProfile, error)
	SetProfile(profile models.UserProfile) error
}

type ProfileService struct {
	store  ProfileStore
	logger *logrus.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func NewProfileService(store ProfileStore, logger *logrus.Logger) *ProfileService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProfileService{store: store, logger: logger, now: time.Now}
}

// Get returns the stored profile, creating the default one on first access.
func (s *ProfileService) Get() (models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

// Ensure makes sure a profile with a MemberSince date exists.
func (s *ProfileService) Ensure() error {
	_, err := s.Get()
	return err
}

// Update replaces the editable fields. MemberSince is never changed and the
// country may only go from unset to set.
func (s *ProfileService) Update(update models.UserProfile) (models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.ensure()
	if err != nil {
		return models.UserProfile{}, err
	}

	if current.Country != nil && *current.Country != "" {
		if update.Country != nil && *update.Country != *current.Country {
			return current, ErrCountryAlreadySet
		}
		update.Country = current.Country
	}
	update.MemberSince = current.MemberSince

	if err := s.store.SetProfile(update); err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.WithField("country_set", update.Country != nil).Info("Profile updated")
	return update, nil
}

func (s *ProfileService) ensure() (models.UserProfile, error) {
	existing, err := s.store.Profile()
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	if existing != nil && !existing.MemberSince.IsZero() {
		return *existing, nil
	}

	profile := models.UserProfile{Preferences: models.DefaultPreferences()}
	if existing != nil {
		profile = *existing
	}
	profile.MemberSince = s.now().UTC()

	if err := s.store.SetProfile(profile); err != nil {
		return models.UserProfile{}, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.WithField("member_since", profile.MemberSince).Info("A profile has been created...")
	return profile, nil
}

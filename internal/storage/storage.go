package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eugenenazirov/seat-allocator/internal/apportionment"
)

const defaultTotalSeats = 20

// MaxTotalSeats bounds the seat total accepted from settings and requests.
const MaxTotalSeats = 1000

var (
	// ErrInvalidSettings indicates the provided settings violate validation rules.
	ErrInvalidSettings = errors.New("settings must have between 0 and 1000 seats and valid apportionment options")
)

// Settings holds the defaults applied to apportionment requests that do not override them.
type Settings struct {
	TotalSeats int
	Options    apportionment.Options
}

// Storage provides access to the apportionment settings.
type Storage interface {
	GetSettings() (Settings, error)
	SetSettings(settings Settings) error
}

// MemoryStorage keeps settings in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	settings Settings
}

// NewMemoryStorage initialises storage with the default settings.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		settings: DefaultSettings(),
	}
}

// DefaultSettings returns 20 seats with the 4% threshold applied.
func DefaultSettings() Settings {
	opts := apportionment.DefaultOptions()
	opts.ApplyThreshold = true
	return Settings{
		TotalSeats: defaultTotalSeats,
		Options:    opts,
	}
}

// GetSettings returns the currently configured settings.
func (s *MemoryStorage) GetSettings() (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings, nil
}

// SetSettings validates and stores the provided settings.
func (s *MemoryStorage) SetSettings(settings Settings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	return nil
}

func validateSettings(settings Settings) error {
	if settings.TotalSeats < 0 || settings.TotalSeats > MaxTotalSeats {
		return fmt.Errorf("%w: total seats %d", ErrInvalidSettings, settings.TotalSeats)
	}
	if err := settings.Options.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

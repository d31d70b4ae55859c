// Package configstore holds the single active inference backend
// configuration. The store is process-local and non-durable: restarts fall
// back to the built-in default.
package configstore

import (
	"crypto/subtle"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrUnauthorized is returned by Set when the supplied admin password does
// not match the configured secret. The current record is left untouched.
var ErrUnauthorized = errors.New("admin password mismatch")

// BackendConfig is the active inference backend record. At most one record
// is current at any time; updates are total replacements, never merges.
type BackendConfig struct {
	// APIURL is the inference backend base URL.
	APIURL string `json:"apiUrl"`

	// IsActive indicates the record is the live one. Always true for the
	// current record; kept for wire compatibility with the admin UI.
	IsActive bool `json:"isActive"`

	// Description is a free-text label for the backend.
	Description string `json:"description"`

	// UpdatedAt is when this record replaced its predecessor.
	UpdatedAt time.Time `json:"updatedAt"`

	// UpdatedBy labels who performed the replacement.
	UpdatedBy string `json:"updatedBy"`
}

// Store is the single source of truth for the active backend URL.
//
// Access is synchronized with an RWMutex; readers get a copy of the record,
// so the struct returned by Get is safe to use without further locking.
type Store struct {
	mu            sync.RWMutex
	current       BackendConfig
	adminPassword string
}

// New creates a store seeded with the built-in default backend.
func New(defaultURL, description, adminPassword string) *Store {
	return &Store{
		current: BackendConfig{
			APIURL:      defaultURL,
			IsActive:    true,
			Description: description,
			UpdatedAt:   time.Now(),
			UpdatedBy:   "system",
		},
		adminPassword: adminPassword,
	}
}

// Get returns a copy of the current backend configuration.
func (s *Store) Get() BackendConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Set validates the URL and admin credential, then fully replaces the
// current record with a fresh timestamp. Fields not supplied are not
// carried over from the previous record.
func (s *Store) Set(apiURL, description, actor, password string) (BackendConfig, error) {
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword)) != 1 {
		return BackendConfig{}, ErrUnauthorized
	}

	if err := ValidateURL(apiURL); err != nil {
		return BackendConfig{}, errors.Wrap(err, "invalid backend url")
	}

	next := BackendConfig{
		APIURL:      apiURL,
		IsActive:    true,
		Description: description,
		UpdatedAt:   time.Now(),
		UpdatedBy:   actor,
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	return next, nil
}

// ValidateURL checks that raw parses as an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return errors.New("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "invalid url format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Errorf("url must use http or https (got %q)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("url must include a hostname")
	}
	return nil
}

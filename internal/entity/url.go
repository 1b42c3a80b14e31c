// Package entity defines the entities and errors used in the application.
// It includes the URL struct, which represents a shortened URL, along with
// its associated metadata, and the error taxonomy shared by the storage and
// business logic layers.
package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShortCodeExists is returned when attempting to create a URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrOriginalURLExists is returned when attempting to create a URL whose original URL is already registered.
	ErrOriginalURLExists = errors.New("original url exists")
	// ErrURLNotFound is returned when a URL with the specified short code cannot be found.
	ErrURLNotFound = errors.New("url not found")
	// ErrURLExpired is returned when resolving a short code past its expiration instant.
	ErrURLExpired = errors.New("url expired")
)

// ExpiredError carries the expiration instant of a short code that was
// resolved past its validity. It unwraps to ErrURLExpired so callers can
// match it with errors.Is.
type ExpiredError struct {
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("url expired at %s", e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *ExpiredError) Unwrap() error {
	return ErrURLExpired
}

// URL represents a shortened URL.
type URL struct {
	ID          int64      // ID is the unique identifier of the URL in the database.
	ShortCode   string     // ShortCode is the generated code used to shorten the original URL.
	OriginalURL string     // OriginalURL is the full URL that the short code resolves to.
	URLStats               // URLStats contains statistics about the URL.
	CreatedAt   time.Time  // CreatedAt is the timestamp when the URL was created.
	ExpiresAt   *time.Time // ExpiresAt is the optional instant after which the URL no longer resolves.
}

// URLStats contains statistics related to a shortened URL.
type URLStats struct {
	ClickCount int64 // ClickCount is the number of times the shortened URL has been resolved.
}

// Expired reports whether the URL is past its expiration at the given instant.
// URLs without an expiration never expire.
func (u *URL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !u.ExpiresAt.After(now)
}

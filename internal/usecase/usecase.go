// Package usecase implements the business logic of the URL shortener: the
// code registry, which allocates short codes and deduplicates original URLs,
// and the resolution service, which resolves codes with expiration awareness
// and counts visits.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linkcut/linkcut/internal/entity"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")

type urlRepository interface {
	Save(ctx context.Context, shortCode, originalURL string, expiresAt *time.Time) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	RetrieveAndCountVisit(ctx context.Context, shortCode string, now time.Time) (*entity.URL, error)
	List(ctx context.Context) ([]*entity.URL, error)
}

// URLUseCase provides the URL shortening operations on top of a repository.
type URLUseCase struct {
	shortCodeLength int
	urlRepo         urlRepository
	now             func() time.Time
}

func New(shortCodeLength int, urlRepo urlRepository) *URLUseCase {
	return &URLUseCase{
		shortCodeLength: shortCodeLength,
		urlRepo:         urlRepo,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// ShortenURL returns the short code registered for originalURL, creating a
// record when none exists yet. Creation is idempotent: the URL is compared
// after trimming surrounding whitespace, and a second call with the same URL
// returns the first call's code. expiresAt only applies to a newly created
// record; an existing record keeps its original expiration.
func (uc *URLUseCase) ShortenURL(ctx context.Context, originalURL string, expiresAt *time.Time) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ShortenURL"
	const maxRetries = 5

	originalURL = strings.TrimSpace(originalURL)

	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}

	url, err := uc.urlRepo.RetrieveByOriginalURL(ctx, originalURL)
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, entity.ErrURLNotFound) {
		return nil, fmt.Errorf("%s: failed to look up original url: %w", op, err)
	}

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.New(uc.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		url, err := uc.urlRepo.Save(ctx, shortCode, originalURL, expiresAt)
		if err != nil {
			if errors.Is(err, entity.ErrShortCodeExists) {
				continue
			}

			if errors.Is(err, entity.ErrOriginalURLExists) {
				// Lost the duplicate-creation race: another request
				// inserted the same URL first. Its record wins, including
				// its expiration.
				url, err := uc.urlRepo.RetrieveByOriginalURL(ctx, originalURL)
				if err != nil {
					return nil, fmt.Errorf("%s: failed to re-read url after conflict: %w", op, err)
				}

				return url, nil
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return url, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode returns the record for shortCode and counts the visit.
// It fails with entity.ErrURLNotFound for unknown codes and with
// entity.ExpiredError for codes past their expiration, in which case the
// click counter is left untouched.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	url, err := uc.urlRepo.RetrieveAndCountVisit(ctx, shortCode, uc.now())
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	return url, nil
}

// GetURLStats returns the record for shortCode without touching the click
// counter. Expired records are returned like any other.
func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	url, err := uc.urlRepo.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}

// ListURLs returns all records, newest first.
func (uc *URLUseCase) ListURLs(ctx context.Context) ([]*entity.URL, error) {
	const op = "usecase.URLUseCase.ListURLs"

	urls, err := uc.urlRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list urls: %w", op, err)
	}

	return urls, nil
}

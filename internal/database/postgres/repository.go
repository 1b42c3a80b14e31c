package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/linkcut/linkcut/internal/entity"
)

const uniqueViolationErrCode = "23505"

// Constraint names from the urls table migration. The violated constraint
// tells apart a short code collision from a concurrent insert of the same
// original URL, which need different recovery paths.
const (
	shortCodeConstraint   = "urls_short_code_key"
	originalURLConstraint = "urls_original_url_key"
)

func uniqueViolationConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode {
		return pgErr.ConstraintName, true
	}

	return "", false
}

type urlRecord struct {
	ID          int64      `db:"id"`
	ShortCode   string     `db:"short_code"`
	OriginalURL string     `db:"original_url"`
	ClickCount  int64      `db:"click_count"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   *time.Time `db:"expires_at"`
}

func (r *urlRecord) toEntity() *entity.URL {
	return &entity.URL{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		URLStats: entity.URLStats{
			ClickCount: r.ClickCount,
		},
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// URLRepository persists URL records in PostgreSQL.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{db: db}
}

// Save inserts a new URL record. It returns entity.ErrShortCodeExists when
// the short code is taken and entity.ErrOriginalURLExists when another record
// already owns the original URL.
func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string, expiresAt *time.Time) (*entity.URL, error) {
	const op = "database.postgres.URLRepository.Save"
	const query = `INSERT INTO urls(short_code, original_url, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *`

	var rec urlRecord

	if err := r.db.GetContext(ctx, &rec, query, shortCode, originalURL, expiresAt); err != nil {
		if constraint, ok := uniqueViolationConstraint(err); ok {
			switch constraint {
			case originalURLConstraint:
				return nil, fmt.Errorf("%s: %w", op, entity.ErrOriginalURLExists)
			case shortCodeConstraint:
				return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
			}
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return rec.toEntity(), nil
}

// RetrieveByShortCode returns the record for a short code regardless of its
// expiration state.
func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "database.postgres.URLRepository.RetrieveByShortCode"
	const query = `SELECT * FROM urls WHERE short_code = $1`

	var rec urlRecord

	if err := r.db.GetContext(ctx, &rec, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return rec.toEntity(), nil
}

// RetrieveByOriginalURL returns the record owning the given original URL.
func (r *URLRepository) RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "database.postgres.URLRepository.RetrieveByOriginalURL"
	const query = `SELECT * FROM urls WHERE original_url = $1`

	var rec urlRecord

	if err := r.db.GetContext(ctx, &rec, query, originalURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return rec.toEntity(), nil
}

// RetrieveAndCountVisit atomically increments the click counter of a short
// code that is still valid at the given instant and returns the record.
// Expired records are left untouched and reported with entity.ExpiredError;
// unknown codes are reported with entity.ErrURLNotFound.
func (r *URLRepository) RetrieveAndCountVisit(ctx context.Context, shortCode string, now time.Time) (*entity.URL, error) {
	const op = "database.postgres.URLRepository.RetrieveAndCountVisit"
	const query = `UPDATE urls
		SET click_count = click_count + 1
		WHERE short_code = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING *`

	var rec urlRecord

	err := r.db.GetContext(ctx, &rec, query, shortCode, now)
	if err == nil {
		return rec.toEntity(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: failed to count visit in urls table: %w", op, err)
	}

	// The guarded update matched nothing: either the code is unknown or it
	// has expired. A second lookup tells the two apart.
	url, err := r.RetrieveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if url.Expired(now) {
		return nil, fmt.Errorf("%s: %w", op, &entity.ExpiredError{ExpiresAt: *url.ExpiresAt})
	}

	return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
}

// List returns all records, newest first.
func (r *URLRepository) List(ctx context.Context) ([]*entity.URL, error) {
	const op = "database.postgres.URLRepository.List"
	const query = `SELECT * FROM urls ORDER BY created_at DESC, id DESC`

	var recs []urlRecord

	if err := r.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("%s: failed to select from urls table: %w", op, err)
	}

	urls := make([]*entity.URL, 0, len(recs))
	for i := range recs {
		urls = append(urls, recs[i].toEntity())
	}

	return urls, nil
}

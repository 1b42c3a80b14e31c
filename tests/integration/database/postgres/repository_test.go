package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/linkcut/linkcut/internal/config"
	"github.com/linkcut/linkcut/internal/database/postgres"
	"github.com/linkcut/linkcut/internal/entity"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func setupPostgres(t testing.TB) config.Postgres {
	t.Helper()

	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "linkcut"

	pgCont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForExposedPort(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCont.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := pgCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	pgPort, err := pgCont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}
}

func runMigrations(t testing.TB, cfg config.Postgres) {
	t.Helper()

	migrationPath := "file://../../../../migrations"

	m, err := migrate.New(migrationPath, cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			t.Fatalf("Failed to rollback migrations: %v", err)
		}
	})
}

func setupURLRepository(t testing.TB) (*postgres.URLRepository, *sqlx.DB) {
	t.Helper()

	cfg := setupPostgres(t)
	runMigrations(t, cfg)

	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})

	return postgres.NewURLRepository(db), db
}

func truncateURLs(t testing.TB, db *sqlx.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE urls RESTART IDENTITY`); err != nil {
		t.Fatalf("Failed to truncate urls table: %v", err)
	}
}

func TestURLRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	repo, db := setupURLRepository(t)

	t.Run("save and retrieve round trip", func(t *testing.T) {
		defer truncateURLs(t, db)

		saved, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "code1", saved.ShortCode)
		assert.Zero(t, saved.URLStats.ClickCount)
		assert.Nil(t, saved.ExpiresAt)
		assert.False(t, saved.CreatedAt.IsZero())

		got, err := repo.RetrieveByShortCode(ctx, "code1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", got.OriginalURL)

		byURL, err := repo.RetrieveByOriginalURL(ctx, "https://example.com")
		require.NoError(t, err)
		assert.Equal(t, "code1", byURL.ShortCode)
	})

	t.Run("short code uniqueness is enforced", func(t *testing.T) {
		defer truncateURLs(t, db)

		_, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)

		_, err = repo.Save(ctx, "code1", "https://example.org", nil)
		assert.ErrorIs(t, err, entity.ErrShortCodeExists)
	})

	t.Run("original url uniqueness is enforced", func(t *testing.T) {
		defer truncateURLs(t, db)

		_, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)

		_, err = repo.Save(ctx, "code2", "https://example.com", nil)
		assert.ErrorIs(t, err, entity.ErrOriginalURLExists)
	})

	t.Run("count visit increments exactly once per call", func(t *testing.T) {
		defer truncateURLs(t, db)

		_, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)

		now := time.Now().UTC()

		_, err = repo.RetrieveAndCountVisit(ctx, "code1", now)
		require.NoError(t, err)

		got, err := repo.RetrieveByShortCode(ctx, "code1")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.URLStats.ClickCount)
	})

	t.Run("concurrent visits lose no updates", func(t *testing.T) {
		defer truncateURLs(t, db)

		_, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)

		const visits = 50

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < visits; i++ {
			g.Go(func() error {
				_, err := repo.RetrieveAndCountVisit(gctx, "code1", time.Now().UTC())
				return err
			})
		}
		require.NoError(t, g.Wait())

		got, err := repo.RetrieveByShortCode(ctx, "code1")
		require.NoError(t, err)
		assert.EqualValues(t, visits, got.URLStats.ClickCount)
	})

	t.Run("expired code fails without counting", func(t *testing.T) {
		defer truncateURLs(t, db)

		expiresAt := time.Now().UTC().Add(-time.Second)
		_, err := repo.Save(ctx, "code1", "https://example.com", &expiresAt)
		require.NoError(t, err)

		_, err = repo.RetrieveAndCountVisit(ctx, "code1", time.Now().UTC())
		assert.ErrorIs(t, err, entity.ErrURLExpired)

		var expErr *entity.ExpiredError
		require.ErrorAs(t, err, &expErr)
		assert.WithinDuration(t, expiresAt, expErr.ExpiresAt, time.Millisecond)

		got, err := repo.RetrieveByShortCode(ctx, "code1")
		require.NoError(t, err)
		assert.Zero(t, got.URLStats.ClickCount)
	})

	t.Run("expiration boundary", func(t *testing.T) {
		defer truncateURLs(t, db)

		expiresAt := time.Now().UTC().Add(time.Hour)
		_, err := repo.Save(ctx, "code1", "https://example.com", &expiresAt)
		require.NoError(t, err)

		// Strictly before the boundary the code resolves.
		_, err = repo.RetrieveAndCountVisit(ctx, "code1", expiresAt.Add(-time.Second))
		require.NoError(t, err)

		// At the boundary instant and after, it does not.
		_, err = repo.RetrieveAndCountVisit(ctx, "code1", expiresAt)
		assert.ErrorIs(t, err, entity.ErrURLExpired)

		_, err = repo.RetrieveAndCountVisit(ctx, "code1", expiresAt.Add(time.Second))
		assert.ErrorIs(t, err, entity.ErrURLExpired)

		got, err := repo.RetrieveByShortCode(ctx, "code1")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.URLStats.ClickCount)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.RetrieveByShortCode(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrURLNotFound)

		_, err = repo.RetrieveAndCountVisit(ctx, "missing", time.Now().UTC())
		assert.ErrorIs(t, err, entity.ErrURLNotFound)
	})

	t.Run("list returns newest first", func(t *testing.T) {
		defer truncateURLs(t, db)

		_, err := repo.Save(ctx, "code1", "https://example.com", nil)
		require.NoError(t, err)
		_, err = repo.Save(ctx, "code2", "https://example.org", nil)
		require.NoError(t, err)

		urls, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, urls, 2)
		assert.Equal(t, "code2", urls[0].ShortCode)
		assert.Equal(t, "code1", urls[1].ShortCode)
	})
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/models"
)

// PostgresStore handles listing and user persistence in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and listings tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         VARCHAR(255) NOT NULL,
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS listings (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title       VARCHAR(120) NOT NULL,
			description TEXT         NOT NULL DEFAULT '',
			price       BIGINT       NOT NULL CHECK (price > 0),
			locality    VARCHAR(120) NOT NULL DEFAULT '',
			phone       VARCHAR(10)  NOT NULL,
			role        VARCHAR(16)  NOT NULL DEFAULT 'owner',
			lat         DOUBLE PRECISION NOT NULL,
			lng         DOUBLE PRECISION NOT NULL,
			image_url   TEXT,
			owner_id    TEXT         NOT NULL,
			owner_email VARCHAR(255) NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS listings_owner_idx ON listings (owner_id);
		CREATE INDEX IF NOT EXISTS listings_created_idx ON listings (created_at DESC);
	`)
	return err
}

// UpsertUser records an identity on login.
func (s *PostgresStore) UpsertUser(ctx context.Context, id models.Identity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, avatar_url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url, last_login_at = NOW()`,
		id.ID, id.Email, id.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, avatar_url, created_at, last_login_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const listingColumns = `id::text, title, description, price, locality, phone, role, lat, lng, image_url, owner_id, owner_email, created_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.Price, &l.Locality, &l.Phone,
		&l.Role, &l.Lat, &l.Lng, &l.ImageURL, &l.OwnerID, &l.OwnerEmail, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Insert writes a listing and returns it with its server-assigned id and
// timestamp.
func (s *PostgresStore) Insert(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO listings (title, description, price, locality, phone, role, lat, lng, image_url, owner_id, owner_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+listingColumns,
		l.Title, l.Description, l.Price, l.Locality, l.Phone, l.Role, l.Lat, l.Lng, l.ImageURL, l.OwnerID, l.OwnerEmail,
	)
	saved, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return saved, nil
}

// List returns listings matching f, newest first.
func (s *PostgresStore) List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}

	q := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// Package postgres implements [identity.Store] over PostgreSQL using
// database/sql with the pgx driver. Lockout counters live in the same row as
// the identity so every server instance observes the same state.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/identity/postgres/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the store. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL credential store.
type Store struct {
	db DBTX
}

var _ identity.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver, pings, and applies migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, *Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return db, New(db), nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

const selectColumns = `id, email, password_hash, role, profile, active, deleted_at,
	failed_attempts, lock_until, banned, ban_expires_at, ban_reason,
	email_verified_at, last_active_at, last_login_at, password_changed_at,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, in identity.NewIdentity) (*identity.Identity, error) {
	if in.Profile == nil || in.ID == "" {
		return nil, identity.ErrInvalidProfile
	}
	profile, err := identity.MarshalProfile(in.Profile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrInvalidProfile, err)
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `
		INSERT INTO identities (id, email, password_hash, role, profile,
			last_active_at, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $6, $6)
		RETURNING ` + selectColumns

	row := s.db.QueryRowContext(ctx, query,
		in.ID, identity.NormalizeEmail(in.Email), in.PasswordHash, string(in.Profile.Role()), profile, created)
	rec, err := scanIdentity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, identity.ErrEmailTaken
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE id = $1`
	rec, err := scanIdentity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return rec, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE lower(email) = $1`
	rec, err := scanIdentity(s.db.QueryRowContext(ctx, query, identity.NormalizeEmail(email)))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return rec, nil
}

// RecordLoginFailure is a single UPDATE so concurrent failures never lose the
// lock deadline. An elapsed lock restarts the counter at one.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (identity.LoginFailure, error) {
	if threshold <= 0 {
		threshold = math.MaxInt32
	}
	// Postgres keeps microseconds; the returned lock_until must compare equal.
	deadline := now.Add(lockFor).Truncate(time.Microsecond)

	query := `
		UPDATE identities SET
			failed_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $4 THEN 1
				ELSE failed_attempts + 1 END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until > $4 THEN lock_until
				WHEN (CASE WHEN lock_until IS NOT NULL AND lock_until <= $4 THEN 1
					ELSE failed_attempts + 1 END) >= $2 THEN $3
				ELSE NULL END,
			updated_at = $4
		WHERE id = $1
		RETURNING failed_attempts, lock_until`

	var (
		out       identity.LoginFailure
		lockUntil sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id, threshold, deadline, now).Scan(&out.Attempts, &lockUntil)
	if err != nil {
		return identity.LoginFailure{}, notFoundOr(err)
	}
	if lockUntil.Valid {
		t := lockUntil.Time
		out.LockUntil = &t
		out.Locked = t.Equal(deadline)
	}
	return out, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `
		UPDATE identities
		SET failed_attempts = 0, lock_until = NULL, last_login_at = $2, last_active_at = $2, updated_at = $2
		WHERE id = $1`, id, now)
}

func (s *Store) Touch(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `UPDATE identities SET last_active_at = $2 WHERE id = $1`, id, now)
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	return s.exec(ctx, `
		UPDATE identities
		SET password_hash = $2, password_changed_at = $3, failed_attempts = 0, lock_until = NULL, updated_at = $3
		WHERE id = $1`, id, hash, changedAt)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE identities SET email_verified_at = $2, updated_at = $2 WHERE id = $1`, id, at)
}

func (s *Store) SetBan(ctx context.Context, id string, banned bool, until *time.Time, reason string) error {
	if !banned {
		until = nil
		reason = ""
	}
	return s.exec(ctx, `
		UPDATE identities
		SET banned = $2, ban_expires_at = $3, ban_reason = $4, updated_at = now()
		WHERE id = $1`, id, banned, nullTime(until), reason)
}

func (s *Store) Unlock(ctx context.Context, id string) error {
	return s.exec(ctx, `
		UPDATE identities SET failed_attempts = 0, lock_until = NULL, updated_at = now()
		WHERE id = $1`, id)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx, `UPDATE identities SET active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE identities
		SET deleted_at = COALESCE(deleted_at, $2), active = FALSE, updated_at = $2
		WHERE id = $1`, id, at)
}

func (s *Store) ChangeRole(ctx context.Context, id string, profile identity.Profile) error {
	data, err := identity.MarshalProfile(profile)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrInvalidProfile, err)
	}
	return s.exec(ctx, `
		UPDATE identities SET role = $2, profile = $3, updated_at = now()
		WHERE id = $1`, id, string(profile.Role()), data)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*identity.Identity, error) {
	var (
		rec                                                       identity.Identity
		role                                                      string
		profile                                                   []byte
		deletedAt, lockUntil, banExpires, verifiedAt, lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &role, &profile, &rec.Active, &deletedAt,
		&rec.FailedAttempts, &lockUntil, &rec.Banned, &banExpires, &rec.BanReason,
		&verifiedAt, &rec.LastActiveAt, &lastLoginAt, &rec.PasswordChangedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Role = identity.Role(role)
	p, err := identity.UnmarshalProfile(rec.Role, profile)
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	rec.Profile = p
	rec.DeletedAt = timePtr(deletedAt)
	rec.LockUntil = timePtr(lockUntil)
	rec.BanExpiresAt = timePtr(banExpires)
	rec.EmailVerifiedAt = timePtr(verifiedAt)
	rec.LastLoginAt = timePtr(lastLoginAt)
	return &rec, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrNotFound
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", identity.ErrUnavailable, err)
}

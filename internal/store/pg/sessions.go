package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authd.dev/internal/session"
)

// SessionStore is the session view of the store.
type SessionStore struct{ q querier }

var _ session.Store = (*SessionStore)(nil)

// Sessions returns the session view.
func (s *Store) Sessions() *SessionStore { return &SessionStore{q: s.q} }

const sessionColumns = `id, user_id, secret_hash, status, expires_at, last_active_at, revoked_at, revoked_by,
	device, platform, ip, city, country, created_at, updated_at`

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.q.ExecContext(ctx, `
		insert into sessions(id, user_id, secret_hash, status, expires_at, last_active_at,
			device, platform, ip, city, country, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
	`, sess.ID, sess.UserID, sess.SecretHash, sess.Status, sess.ExpiresAt, sess.LastActiveAt,
		sess.Metadata.Device, sess.Metadata.Platform, sess.Metadata.IP, sess.Metadata.City, sess.Metadata.Country)
	return mapErr(err)
}

func (s *SessionStore) Find(ctx context.Context, id string) (*session.Session, error) {
	row := s.q.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id = $1`, id)
	return scanSession(row.Scan)
}

func scanSession(scan func(...any) error) (*session.Session, error) {
	var sess session.Session
	var revokedBy sql.NullString
	err := scan(&sess.ID, &sess.UserID, &sess.SecretHash, &sess.Status, &sess.ExpiresAt, &sess.LastActiveAt,
		&sess.RevokedAt, &revokedBy,
		&sess.Metadata.Device, &sess.Metadata.Platform, &sess.Metadata.IP, &sess.Metadata.City, &sess.Metadata.Country,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.RevokedBy = fromNull(revokedBy)
	return &sess, nil
}

// RotateActive replaces the secret and extends expiry in one guarded
// statement so a session revoked mid-refresh stays revoked.
func (s *SessionStore) RotateActive(ctx context.Context, id, secretHash string, expiresAt, now time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		update sessions
		set secret_hash = $2, expires_at = $3, last_active_at = $4,
		    revoked_at = null, revoked_by = null, updated_at = $4
		where id = $1 and status = 'active'
	`, id, secretHash, expiresAt, now)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotActive
	}
	return nil
}

func (s *SessionStore) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		update sessions
		set status = 'revoked', revoked_at = $3, revoked_by = $2, updated_at = $3
		where id = $1
	`, id, nullStr(revokedBy), at)
	return mapErr(err)
}

func (s *SessionStore) MarkExpired(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `
		update sessions set status = 'expired', updated_at = now()
		where id = $1 and status = 'active'
	`, id)
	return mapErr(err)
}

func (s *SessionStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		update sessions set last_active_at = $2 where id = $1
	`, id, at)
	return mapErr(err)
}

func (s *SessionStore) ListForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+sessionColumns+` from sessions where user_id = $1 order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID, keepID, revokedBy string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		update sessions
		set status = 'revoked', revoked_at = $4, revoked_by = $3, updated_at = $4
		where user_id = $1 and id <> $2 and status = 'active'
	`, userID, keepID, nullStr(revokedBy), at)
	return mapErr(err)
}

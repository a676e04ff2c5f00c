package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"authd.dev/internal/usertoken"
)

// TokenStore is the single-use-token view of the store.
type TokenStore struct{ q querier }

var _ usertoken.Store = (*TokenStore)(nil)

// Tokens returns the single-use-token view.
func (s *Store) Tokens() *TokenStore { return &TokenStore{q: s.q} }

func (s *TokenStore) Create(ctx context.Context, tok *usertoken.Token) error {
	meta, err := json.Marshal(tok.Metadata)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		insert into user_tokens(id, user_id, token_type, secret_hash, metadata, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, now())
	`, tok.ID, tok.UserID, string(tok.Type), tok.SecretHash, meta, tok.ExpiresAt)
	return mapErr(err)
}

func (s *TokenStore) Find(ctx context.Context, id string) (*usertoken.Token, error) {
	var tok usertoken.Token
	var typ string
	var meta []byte
	err := s.q.QueryRowContext(ctx, `
		select id, user_id, token_type, secret_hash, metadata, expires_at, consumed_at, created_at
		from user_tokens where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &typ, &tok.SecretHash, &meta, &tok.ExpiresAt, &tok.ConsumedAt, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usertoken.ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	tok.Type = usertoken.Type(typ)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &tok.Metadata); err != nil {
			return nil, err
		}
	}
	return &tok, nil
}

// Consume stamps the token exactly once; a second call finds no
// unconsumed row and fails.
func (s *TokenStore) Consume(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		update user_tokens set consumed_at = $2 where id = $1 and consumed_at is null
	`, id, at)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return usertoken.ErrInvalid
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `delete from user_tokens where id = $1`, id)
	return mapErr(err)
}

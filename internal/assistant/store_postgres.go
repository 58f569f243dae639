package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists sessions in the assistant_sessions table.
type PGStore struct {
	db  pgQuerier
	now func() time.Time
}

// NewPGStore builds a Postgres-backed store over a pgx pool.
func NewPGStore(db pgQuerier) *PGStore {
	if db == nil {
		panic("assistant: pgx pool cannot be nil")
	}
	return &PGStore{db: db, now: time.Now}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) Save(ctx context.Context, owner string, messages []Message) error {
	data, err := EncodeMessages(messages)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO assistant_sessions (owner_key, messages, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_key) DO UPDATE
		SET messages = EXCLUDED.messages,
		    updated_at = EXCLUDED.updated_at
	`, SessionKey(owner), string(data), s.now().UTC()); err != nil {
		return fmt.Errorf("assistant: failed to persist session: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, owner string) ([]Message, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT messages FROM assistant_sessions WHERE owner_key = $1
	`, SessionKey(owner)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("assistant: failed to load session: %w", err)
	}
	messages, err := DecodeMessages(raw)
	if err != nil {
		return nil, nil
	}
	return messages, nil
}

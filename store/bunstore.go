package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/plexcash/go-session"
)

// KVEntry is the Bun model for the general store. Entries are addressed by
// key; the primary key is derived from the key so writes are natural
// upserts.
type KVEntry struct {
	bun.BaseModel `bun:"table:session_kv,alias:kv"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	Key       string    `bun:"key,notnull,unique"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,default:current_timestamp"`
}

// BunStore persists key/value pairs in a relational table. It carries the
// advisory session fields (email, flags) and the legacy token; bearer
// credentials for newer methods belong in the secure store.
type BunStore struct {
	db   *bun.DB
	repo repository.Repository[*KVEntry]
}

var _ session.KeyValueStore = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	repo := repository.NewRepository[*KVEntry](db, repository.ModelHandlers[*KVEntry]{
		NewRecord: func() *KVEntry { return &KVEntry{} },
		GetID: func(e *KVEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *KVEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "key"
		},
	})

	return &BunStore{db: db, repo: repo}
}

// Init creates the backing table when it does not exist yet. Call once at
// startup; safe to call again.
func (s *BunStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*KVEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session_kv table")
	}
	return nil
}

func (s *BunStore) Get(ctx context.Context, key string) (string, error) {
	var entry KVEntry
	err := s.db.NewSelect().
		Model(&entry).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", session.ErrKeyNotFound
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read key "+key)
	}
	return entry.Value, nil
}

func (s *BunStore) Set(ctx context.Context, key, value string) error {
	id, err := keyID(key)
	if err != nil {
		return err
	}

	entry := &KVEntry{
		ID:        id,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	if _, err := s.repo.Upsert(ctx, entry); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist key "+key)
	}
	return nil
}

func (s *BunStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.NewDelete().
		Model((*KVEntry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete key "+key)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrKeyNotFound
	}
	return nil
}

// keyID derives a stable primary key from the logical key so the same key
// always maps to the same row.
func keyID(key string) (uuid.UUID, error) {
	id, err := hashid.NewUUID(key)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive id for key "+key)
	}
	return id, nil
}

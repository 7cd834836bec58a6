package session

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialRecord is the persisted credential row. One row per origin.
type CredentialRecord struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Origin        string    `bun:"origin,notnull,unique" json:"origin"`
	Token         string    `bun:"token,notnull" json:"token"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// BunStore keeps the credential in a SQLite (or any Bun-supported) database.
// Like the other stores it is synchronous and never fails its caller: on
// database errors it degrades to in-memory behavior.
type BunStore struct {
	db       *bun.DB
	id       uuid.UUID
	origin   string
	logger   Logger
	mu       sync.Mutex
	mem      *MemoryStore
	ready    bool
	degraded bool
}

var _ CredentialStore = (*BunStore)(nil)

func NewBunStore(db *bun.DB, origin string, opts ...StoreOption) *BunStore {
	options := buildStoreOptions(opts...)
	id, err := hashid.NewUUID(origin)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(origin))
	}
	return &BunStore{
		db:     db,
		id:     id,
		origin: origin,
		logger: options.logger,
		mem:    NewMemoryStore(),
	}
}

func (s *BunStore) Save(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.Save(token)
	if !s.ensureSchema() {
		return
	}
	ctx := context.Background()
	record := &CredentialRecord{
		ID:        s.id,
		Origin:    s.origin,
		Token:     token,
		UpdatedAt: time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		s.degrade("save credential", err)
	}
}

func (s *BunStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.mem.Load()
	}
	if !s.ensureSchema() {
		return s.mem.Load()
	}
	record := new(CredentialRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("cred.id = ?", s.id).
		Scan(context.Background())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false
		}
		s.degrade("load credential", err)
		return s.mem.Load()
	}
	if record.Token == "" {
		return "", false
	}
	return record.Token, true
}

func (s *BunStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.Clear()
	if s.degraded || !s.ensureSchema() {
		return
	}
	_, err := s.db.NewDelete().
		Model((*CredentialRecord)(nil)).
		Where("cred.id = ?", s.id).
		Exec(context.Background())
	if err != nil {
		s.degrade("clear credential", err)
	}
}

// ensureSchema lazily creates the credentials table. Callers hold s.mu.
func (s *BunStore) ensureSchema() bool {
	if s.degraded {
		return false
	}
	if s.ready {
		return true
	}
	_, err := s.db.NewCreateTable().
		Model((*CredentialRecord)(nil)).
		IfNotExists().
		Exec(context.Background())
	if err != nil {
		s.degrade("create credentials table", err)
		return false
	}
	s.ready = true
	return true
}

func (s *BunStore) degrade(op string, err error) {
	if !s.degraded {
		s.logger.Warn("credential store degraded to memory: %s: %v", op, err)
	}
	s.degraded = true
}

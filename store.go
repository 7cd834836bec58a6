package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goliatone/hashid/pkg/hashid"
)

// StoreOption customizes credential store construction.
type StoreOption func(*storeOptions)

type storeOptions struct {
	logger Logger
}

// WithStoreLogger overrides the logger used to report degraded storage.
func WithStoreLogger(logger Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildStoreOptions(opts ...StoreOption) *storeOptions {
	options := &storeOptions{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

// storageKeyForOrigin derives a stable storage key from the service origin so
// that credentials for different origins never collide.
func storageKeyForOrigin(origin string) string {
	if id, err := hashid.NewUUID(origin); err == nil {
		return id.String()
	}
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, origin)
	return sanitized
}

// MemoryStore keeps the credential in process memory. It is the degraded
// fallback for the durable stores and the default for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	has   bool
}

var _ CredentialStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.has = true
}

func (s *MemoryStore) Load() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.has
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.has = false
}

// FileStore persists the credential as a single file per origin under dir.
// On any I/O failure it degrades to in-memory behavior instead of surfacing
// errors: the session is simply lost on the next restart.
type FileStore struct {
	path     string
	logger   Logger
	mu       sync.Mutex
	mem      *MemoryStore
	degraded bool
}

var _ CredentialStore = (*FileStore)(nil)

func NewFileStore(dir, origin string, opts ...StoreOption) *FileStore {
	options := buildStoreOptions(opts...)
	return &FileStore{
		path:   filepath.Join(dir, storageKeyForOrigin(origin)+".credential"),
		logger: options.logger,
		mem:    NewMemoryStore(),
	}
}

// Path returns the file backing this store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		s.mem.Save(token)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.degrade("create state dir", err)
		s.mem.Save(token)
		return
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		s.degrade("write credential", err)
		s.mem.Save(token)
		return
	}
	s.mem.Save(token)
}

func (s *FileStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.mem.Load()
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false
		}
		s.degrade("read credential", err)
		return s.mem.Load()
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem.Clear()
	if s.degraded {
		return
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.degrade("remove credential", err)
	}
}

func (s *FileStore) degrade(op string, err error) {
	if !s.degraded {
		s.logger.Warn("credential store degraded to memory: %s: %v", op, err)
	}
	s.degraded = true
}

package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/harunnryd/autosend/internal/pathutil"

	"github.com/natefinch/atomic"
)

type processedKeys struct {
	Keys map[string]int64 `json:"keys"` // key -> expiry (unix seconds)
}

// FileStore keeps claimed keys in a JSON file. It suits single-process
// deployments; use RedisStore when several workers share notifications.
type FileStore struct {
	path  string
	state processedKeys
	mu    sync.Mutex
	now   func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if err := pathutil.EnsureParentDir(path); err != nil {
		return nil, err
	}
	s := &FileStore{
		path:  path,
		state: processedKeys{Keys: make(map[string]int64)},
		now:   time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return err
	}
	if s.state.Keys == nil {
		s.state.Keys = make(map[string]int64)
	}
	return nil
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *FileStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	if expiry, exists := s.state.Keys[key]; exists && expiry > now {
		return false, nil
	}

	s.state.Keys[key] = now + int64(ttl.Seconds())
	if err := s.save(); err != nil {
		delete(s.state.Keys, key)
		return false, err
	}
	return true, nil
}

func (s *FileStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Keys[key]; !exists {
		return nil
	}
	delete(s.state.Keys, key)
	return s.save()
}

// Prune drops expired keys and returns how many were removed.
func (s *FileStore) Prune() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	count := 0
	for k, expiry := range s.state.Keys {
		if expiry <= now {
			delete(s.state.Keys, k)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.save()
}

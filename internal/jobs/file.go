package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/harunnryd/autosend/internal/errors"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

type fileState struct {
	Jobs map[string]*Job   `json:"jobs"`
	Keys map[string]string `json:"keys"` // idempotency key -> job id
}

type FileStoreConfig struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
}

// FileStore keeps every job in one JSON document. Each mutation reloads the
// document under an flock so several processes on one host share it safely.
type FileStore struct {
	path string
	lock *flock.Flock
	cfg  FileStoreConfig
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(dir string, cfg FileStoreConfig) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if cfg.LockRetry <= 0 {
		cfg.LockRetry = 50 * time.Millisecond
	}
	return &FileStore{
		path: filepath.Join(dir, "jobs.json"),
		lock: flock.New(filepath.Join(dir, "jobs.lock")),
		cfg:  cfg,
		now:  time.Now,
	}, nil
}

func (s *FileStore) Create(ctx context.Context, job Job) error {
	return s.update(ctx, func(st *fileState) error {
		if _, exists := st.Keys[job.IdempotencyKey]; exists {
			return fmt.Errorf("job %s: %w", job.IdempotencyKey, apperrors.ErrCollision)
		}
		if _, exists := st.Jobs[job.ID]; exists {
			return fmt.Errorf("job id %s: %w", job.ID, apperrors.ErrCollision)
		}

		now := s.now().UTC()
		job.Status = StatusPending
		job.AttemptCount = 0
		job.RunAt = job.RunAt.UTC()
		job.CreatedAt = now
		job.UpdatedAt = now
		st.Jobs[job.ID] = &job
		st.Keys[job.IdempotencyKey] = job.ID
		return nil
	})
}

func (s *FileStore) Get(ctx context.Context, id string) (*Job, error) {
	var out *Job
	err := s.read(ctx, func(st *fileState) error {
		job, ok := st.Jobs[id]
		if !ok {
			return apperrors.NotFound("job " + id)
		}
		cp := *job
		out = &cp
		return nil
	})
	return out, err
}

func (s *FileStore) Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*Job, error) {
	var out *Job
	err := s.update(ctx, func(st *fileState) error {
		job, ok := st.Jobs[id]
		if !ok || !job.Claimable(now) {
			return fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
		}
		lockedUntil := now.Add(lease).UTC()
		job.Status = StatusRunning
		job.AttemptCount++
		job.LockedUntil = &lockedUntil
		job.UpdatedAt = now.UTC()
		cp := *job
		out = &cp
		return nil
	})
	return out, err
}

func (s *FileStore) Complete(ctx context.Context, id string, status Status, detail string) error {
	if !status.Terminal() {
		return apperrors.InvalidInput(fmt.Sprintf("status %q is not terminal", status))
	}
	return s.update(ctx, func(st *fileState) error {
		job, ok := st.Jobs[id]
		if !ok || job.Status.Terminal() {
			return fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
		}
		job.Status = status
		job.Result = detail
		if status == StatusErrored {
			job.LastError = detail
		}
		job.LockedUntil = nil
		job.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *FileStore) Release(ctx context.Context, id string, detail string) error {
	return s.update(ctx, func(st *fileState) error {
		job, ok := st.Jobs[id]
		if !ok || job.Status != StatusRunning {
			return fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
		}
		job.Status = StatusPending
		job.LockedUntil = nil
		job.LastError = detail
		job.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *FileStore) ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	return s.list(ctx, limit, true, func(j *Job) bool { return j.Claimable(now) })
}

func (s *FileStore) List(ctx context.Context, f Filter) ([]Job, error) {
	return s.list(ctx, f.Limit, false, func(j *Job) bool {
		return f.Status == "" || j.Status == f.Status
	})
}

func (s *FileStore) list(ctx context.Context, limit int, ascending bool, keep func(*Job) bool) ([]Job, error) {
	var out []Job
	err := s.read(ctx, func(st *fileState) error {
		for _, job := range st.Jobs {
			if keep(job) {
				out = append(out, *job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].RunAt.Before(out[j].RunAt)
		}
		return out[i].RunAt.After(out[j].RunAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) read(ctx context.Context, fn func(*fileState) error) error {
	return s.withLock(ctx, func() error {
		st, err := s.load()
		if err != nil {
			return err
		}
		return fn(st)
	})
}

func (s *FileStore) update(ctx context.Context, fn func(*fileState) error) error {
	return s.withLock(ctx, func() error {
		st, err := s.load()
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		return s.save(st)
	})
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, s.cfg.LockRetry)
	if err != nil {
		return apperrors.Transient(fmt.Sprintf("acquire jobs lock: %v", err))
	}
	if !locked {
		return apperrors.Transient("acquire jobs lock: timed out")
	}
	defer s.lock.Unlock()

	return fn()
}

func (s *FileStore) load() (*fileState, error) {
	st := &fileState{Jobs: make(map[string]*Job), Keys: make(map[string]string)}

	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(content, st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if st.Jobs == nil {
		st.Jobs = make(map[string]*Job)
	}
	if st.Keys == nil {
		st.Keys = make(map[string]string)
	}
	return st, nil
}

func (s *FileStore) save(st *fileState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}

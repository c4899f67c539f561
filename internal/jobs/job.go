// Package jobs persists delayed send intents. The idempotency key is the only
// concurrency guard: creating a job whose key already exists is rejected with
// errors.ErrCollision and never overwrites the existing row.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusExecuted Status = "executed"
	StatusSkipped  Status = "skipped"
	StatusErrored  Status = "errored"
)

func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusSkipped || s == StatusErrored
}

type Job struct {
	ID               string     `json:"id"`
	IdempotencyKey   string     `json:"idempotency_key"`
	Type             string     `json:"type"`
	WorkspaceID      string     `json:"workspace_id"`
	LeadID           string     `json:"lead_id"`
	TriggerMessageID string     `json:"trigger_message_id"`
	DraftID          string     `json:"draft_id"`
	Status           Status     `json:"status"`
	RunAt            time.Time  `json:"run_at"`
	AttemptCount     int        `json:"attempt_count"`
	MaxAttempts      int        `json:"max_attempts"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	Result           string     `json:"result,omitempty"`
	Payload          Payload    `json:"payload"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Payload is decision metadata kept for operators; execution never reads it.
type Payload struct {
	Mode         string  `json:"mode,omitempty"`
	Channel      string  `json:"channel,omitempty"`
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
	DelaySeconds int     `json:"delay_seconds"`
}

// Claimable reports whether a runner may take the job at now.
func (j Job) Claimable(now time.Time) bool {
	switch j.Status {
	case StatusPending:
		return !j.RunAt.After(now)
	case StatusRunning:
		return j.LockedUntil != nil && j.LockedUntil.Before(now)
	default:
		return false
	}
}

type Filter struct {
	Status Status
	Limit  int
}

type Store interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*Job, error)
	Complete(ctx context.Context, id string, status Status, detail string) error
	Release(ctx context.Context, id string, detail string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	List(ctx context.Context, f Filter) ([]Job, error)
}

// IdempotencyKey derives the dedupe key for a job from the fields that
// identify one logical send.
func IdempotencyKey(workspaceID, triggerMessageID, jobType, draftID string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{workspaceID, triggerMessageID, jobType, draftID}, "\x1f")))
	return jobType + ":" + hex.EncodeToString(sum[:])
}

func NewID() string {
	return ulid.Make().String()
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("schedule session not found")

// Session owns one solved schedule and every edit made to it.
type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
	State     *scheduler.ScheduleState
}

// Store persists sessions between requests.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type record struct {
	ID        string             `json:"id"`
	Owner     string             `json:"owner"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Snapshot  scheduler.Snapshot `json:"snapshot"`
}

func encode(s *Session) ([]byte, error) {
	return json.Marshal(record{
		ID:        s.ID,
		Owner:     s.Owner,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Snapshot:  s.State.Snapshot(),
	})
}

func decode(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	st, err := scheduler.RestoreState(r.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", r.ID, err)
	}
	return &Session{
		ID:        r.ID,
		Owner:     r.Owner,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		State:     st,
	}, nil
}

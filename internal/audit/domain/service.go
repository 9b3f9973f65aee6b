package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Entry is what callers record; ids and timestamps are filled by the
// service.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Status     Status
	Metadata   map[string]any
}

// Service is the append-only audit sink. LogTx writes inside an open
// transaction so the entry is durable exactly when the triggering
// mutation commits.
type Service interface {
	Log(ctx context.Context, entry Entry) error
	LogTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidActor  = errors.New("invalid_actor")
)

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	"github.com/smallbiznis/disburse/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Log(ctx context.Context, entry auditdomain.Entry) error {
	return s.LogTx(ctx, s.db, entry)
}

func (s *Service) LogTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	record, err := s.buildRecord(entry)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, record); err != nil {
		s.log.Error("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) buildRecord(entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return nil, auditdomain.ErrInvalidAction
	}
	actorType := strings.TrimSpace(string(entry.ActorType))
	if actorType == "" {
		return nil, auditdomain.ErrInvalidActor
	}

	status := entry.Status
	if status == "" {
		status = auditdomain.StatusInfo
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		metadata[key] = value
	}

	record := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		Action:     action,
		TargetType: strings.TrimSpace(entry.TargetType),
		Status:     string(status),
		Metadata:   metadata,
		CreatedAt:  s.clock.Now(),
	}
	if actorID := strings.TrimSpace(entry.ActorID); actorID != "" {
		record.ActorID = &actorID
	}
	if targetID := strings.TrimSpace(entry.TargetID); targetID != "" {
		record.TargetID = &targetID
	}
	return record, nil
}

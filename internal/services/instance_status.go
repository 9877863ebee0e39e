package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/gateway"
	"zapdesk/internal/models"
)

// StateChecker queries the gateway for a channel's live connection status.
type StateChecker interface {
	GetConnectionState(ctx context.Context, instanceKey string) (*gateway.ConnectionState, error)
}

// InstanceStatusStore is the slice of the store the synchronizer writes to.
type InstanceStatusStore interface {
	UpdateInstanceStatus(ctx context.Context, instanceKey, status string) error
	UpsertConnection(ctx context.Context, conn *models.Connection) error
}

// InstanceStatusService mirrors the gateway's connection truth into the
// instance row and its connection projection.
type InstanceStatusService struct {
	checker StateChecker
	store   InstanceStatusStore
}

// NewInstanceStatusService creates an InstanceStatusService.
func NewInstanceStatusService(checker StateChecker, st InstanceStatusStore) (*InstanceStatusService, error) {
	if checker == nil {
		return nil, fmt.Errorf("state checker cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("instance status store cannot be nil")
	}
	return &InstanceStatusService{checker: checker, store: st}, nil
}

// Sync queries the gateway and writes the resulting status into both records.
// A gateway failure is returned as-is so the caller can abort and propagate
// the gateway's status code; store write failures are logged only, the mirror
// is best effort.
func (s *InstanceStatusService) Sync(ctx context.Context, instanceKey string) error {
	state, err := s.checker.GetConnectionState(ctx, instanceKey)
	if err != nil {
		return err
	}

	connected := state.Connected()
	status := models.InstanceStatusDisconnected
	if connected {
		status = models.InstanceStatusActive
	}

	if err := s.store.UpdateInstanceStatus(ctx, instanceKey, status); err != nil {
		log.Error().Err(err).Str("instanceKey", instanceKey).Str("status", status).Msg("Failed to write instance status")
	}

	conn := &models.Connection{
		InstanceKey: instanceKey,
		Connected:   connected,
		Status:      status,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertConnection(ctx, conn); err != nil {
		log.Error().Err(err).Str("instanceKey", instanceKey).Msg("Failed to write connection projection")
	}

	log.Debug().Str("instanceKey", instanceKey).Bool("connected", connected).Str("status", status).Msg("Instance status synchronized")
	return nil
}

package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

// ChannelRepository provides access to notification channels.
type ChannelRepository interface {
	// Create inserts a channel.
	Create(ctx context.Context, c *model.Channel) error
	// GetByID loads a channel by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Channel, error)
	// ListByProject returns all channels of a project.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Channel, error)
	// ListActiveByProject returns only active channels of a project.
	ListActiveByProject(ctx context.Context, projectID uuid.UUID) ([]model.Channel, error)
	// Update persists name, config, min level, and active flag.
	Update(ctx context.Context, c *model.Channel) error
	// Delete removes a channel.
	Delete(ctx context.Context, id uuid.UUID) error
}

// HistoryRepository records notification delivery outcomes. Append-only.
type HistoryRepository interface {
	// Append inserts one outcome row.
	Append(ctx context.Context, rec *model.NotificationRecord) error
	// ListByChannel returns recent outcomes for a channel, newest first.
	ListByChannel(ctx context.Context, channelID uuid.UUID, limit int) ([]model.NotificationRecord, error)
}

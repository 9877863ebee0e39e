package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// ConversationStore is the slice of the store the conversation resolver needs.
type ConversationStore interface {
	FirstConversationByContact(ctx context.Context, contactID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
}

// ConversationResolver attaches inbound messages to a conversation. It never
// inspects message content.
type ConversationResolver struct {
	store ConversationStore
}

// NewConversationResolver creates a ConversationResolver.
func NewConversationResolver(st ConversationStore) (*ConversationResolver, error) {
	if st == nil {
		return nil, fmt.Errorf("conversation store cannot be nil")
	}
	return &ConversationResolver{store: st}, nil
}

// Resolve returns the first conversation for the contact, regardless of
// status, creating one in AI attendance on miss.
func (r *ConversationResolver) Resolve(ctx context.Context, contact *models.Contact) (*models.Conversation, error) {
	conv, err := r.store.FirstConversationByContact(ctx, contact.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("contactID", contact.ID).Msg("Error querying conversation")
		return nil, fmt.Errorf("querying conversation for contact %s: %w", contact.ID, err)
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now().UTC()
	conv = &models.Conversation{
		ID:             uuid.NewString(),
		ContactID:      contact.ID,
		OrganizationID: contact.OrganizationID,
		Status:         models.ConversationStatusAI,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateConversation(ctx, conv); err != nil {
		log.Error().Err(err).Str("contactID", contact.ID).Msg("Failed to create conversation")
		return nil, fmt.Errorf("creating conversation for contact %s: %w", contact.ID, err)
	}

	log.Info().Str("conversationID", conv.ID).Str("contactID", contact.ID).Msg("Created new conversation in AI attendance")
	return conv, nil
}

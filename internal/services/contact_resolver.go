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

// ContactStore is the slice of the store the contact resolver needs.
type ContactStore interface {
	GetContactByPhone(ctx context.Context, orgID, phone string) (*models.Contact, error)
	CreateContact(ctx context.Context, c *models.Contact) error
}

// ContactResolver finds or creates the contact row for an inbound sender.
type ContactResolver struct {
	store ContactStore
}

// NewContactResolver creates a ContactResolver.
func NewContactResolver(st ContactStore) (*ContactResolver, error) {
	if st == nil {
		return nil, fmt.Errorf("contact store cannot be nil")
	}
	return &ContactResolver{store: st}, nil
}

// Resolve looks up the contact by (phone, organization) and creates it on
// miss. A store "not found" is a normal condition here, not a failure. When
// the gateway supplied no display name the contact is named after the last
// four digits of the phone.
func (r *ContactResolver) Resolve(ctx context.Context, orgID, phone, displayName string) (*models.Contact, error) {
	contact, err := r.store.GetContactByPhone(ctx, orgID, phone)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error().Err(err).Str("phone", phone).Msg("Error querying contact")
		return nil, fmt.Errorf("querying contact %s: %w", phone, err)
	}
	if contact != nil {
		return contact, nil
	}

	name := displayName
	if name == "" {
		name = fallbackContactName(phone)
	}

	contact = &models.Contact{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Phone:          phone,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.CreateContact(ctx, contact); err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("Failed to create contact")
		return nil, fmt.Errorf("creating contact %s: %w", phone, err)
	}

	log.Info().Str("contactID", contact.ID).Str("phone", phone).Msg("Created new contact")
	return contact, nil
}

func fallbackContactName(phone string) string {
	last4 := phone
	if len(phone) > 4 {
		last4 = phone[len(phone)-4:]
	}
	return "Contato " + last4
}

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

type fakeContactStore struct {
	contacts map[string]*models.Contact // keyed by org|phone
	getErr   error
}

func (s *fakeContactStore) key(orgID, phone string) string { return orgID + "|" + phone }

func (s *fakeContactStore) GetContactByPhone(_ context.Context, orgID, phone string) (*models.Contact, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if c, ok := s.contacts[s.key(orgID, phone)]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeContactStore) CreateContact(_ context.Context, c *models.Contact) error {
	if s.contacts == nil {
		s.contacts = map[string]*models.Contact{}
	}
	s.contacts[s.key(c.OrganizationID, c.Phone)] = c
	return nil
}

func TestContactResolverCreatesOnMiss(t *testing.T) {
	st := &fakeContactStore{}
	r, err := NewContactResolver(st)
	require.NoError(t, err)

	contact, err := r.Resolve(context.Background(), "org-1", "5511999990000", "Maria")
	require.NoError(t, err)
	assert.Equal(t, "Maria", contact.Name)
	assert.Equal(t, "5511999990000", contact.Phone)
	assert.NotEmpty(t, contact.ID)

	// Second resolution finds the same row.
	again, err := r.Resolve(context.Background(), "org-1", "5511999990000", "")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, again.ID)
}

func TestContactResolverFallbackName(t *testing.T) {
	st := &fakeContactStore{}
	r, err := NewContactResolver(st)
	require.NoError(t, err)

	contact, err := r.Resolve(context.Background(), "org-1", "5511999990000", "")
	require.NoError(t, err)
	assert.Equal(t, "Contato 0000", contact.Name)
}

func TestContactResolverPropagatesQueryError(t *testing.T) {
	st := &fakeContactStore{getErr: fmt.Errorf("connection reset")}
	r, err := NewContactResolver(st)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "org-1", "5511999990000", "")
	assert.Error(t, err)
}

type fakeConversationStore struct {
	byContact map[string][]*models.Conversation
}

func (s *fakeConversationStore) FirstConversationByContact(_ context.Context, contactID string) (*models.Conversation, error) {
	convs := s.byContact[contactID]
	if len(convs) == 0 {
		return nil, store.ErrNotFound
	}
	return convs[0], nil
}

func (s *fakeConversationStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	if s.byContact == nil {
		s.byContact = map[string][]*models.Conversation{}
	}
	s.byContact[conv.ContactID] = append(s.byContact[conv.ContactID], conv)
	return nil
}

func TestConversationResolverCreatesInAIAttendance(t *testing.T) {
	st := &fakeConversationStore{}
	r, err := NewConversationResolver(st)
	require.NoError(t, err)

	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1"}
	conv, err := r.Resolve(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusAI, conv.Status)
	assert.Equal(t, "contact-1", conv.ContactID)
	assert.False(t, conv.StartedAt.IsZero())
}

func TestConversationResolverFirstMatchWinsRegardlessOfStatus(t *testing.T) {
	st := &fakeConversationStore{byContact: map[string][]*models.Conversation{
		"contact-1": {
			{ID: "conv-old", ContactID: "contact-1", Status: models.ConversationStatusHuman},
			{ID: "conv-new", ContactID: "contact-1", Status: models.ConversationStatusAI},
		},
	}}
	r, err := NewConversationResolver(st)
	require.NoError(t, err)

	conv, err := r.Resolve(context.Background(), &models.Contact{ID: "contact-1"})
	require.NoError(t, err)
	assert.Equal(t, "conv-old", conv.ID)
}

type fakeDedupStore struct {
	lastSince time.Time
	dup       bool
}

func (s *fakeDedupStore) HasRecentContactMessage(_ context.Context, _, _ string, since time.Time) (bool, error) {
	s.lastSince = since
	return s.dup, nil
}

func TestMessageDeduplicatorWindow(t *testing.T) {
	st := &fakeDedupStore{dup: true}
	d, err := NewMessageDeduplicator(st)
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	dup, err := d.IsDuplicate(context.Background(), "conv-1", "Olá")
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, fixed.Add(-DedupWindow), st.lastSince)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"zapdesk/internal/models"
)

// ErrNotFound is returned when a row-level lookup matches nothing. Callers are
// expected to treat it as a normal condition (find-or-create flows).
var ErrNotFound = errors.New("store: not found")

// Store wraps the relational store holding instances, contacts, conversations
// and messages. It is constructed once per process and injected explicitly.
type Store struct {
	db *sqlx.DB
}

// Open connects using the given driver ("postgres" or "sqlite") and DSN and
// bootstraps the schema.
func Open(driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn cannot be empty")
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect (%s): %w", driver, err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	log.Info().Str("driver", driver).Msg("Store connection established")
	return s, nil
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		instance_key TEXT NOT NULL UNIQUE,
		organization_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		instance_key TEXT PRIMARY KEY,
		connected BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		phone TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (phone, organization_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		contact_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ai',
		started_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		gateway_id TEXT NOT NULL DEFAULT '',
		delivery_status TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_org_sender_created ON messages (organization_id, sender, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_contact ON conversations (contact_id)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: schema bootstrap failed: %w", err)
		}
	}
	return nil
}

// --- Instances ---

func (s *Store) GetInstanceByKey(ctx context.Context, instanceKey string) (*models.Instance, error) {
	var inst models.Instance
	q := s.db.Rebind(`SELECT * FROM instances WHERE instance_key = ?`)
	err := s.db.GetContext(ctx, &inst, q, instanceKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get instance %s: %w", instanceKey, err)
	}
	return &inst, nil
}

// ListActiveInstances returns every instance currently marked active for the
// organization. Used by the ingestor's fallback resolution.
func (s *Store) ListActiveInstances(ctx context.Context, orgID string) ([]models.Instance, error) {
	var out []models.Instance
	q := s.db.Rebind(`SELECT * FROM instances WHERE organization_id = ? AND status = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &out, q, orgID, models.InstanceStatusActive); err != nil {
		return nil, fmt.Errorf("store: list active instances for %s: %w", orgID, err)
	}
	return out, nil
}

func (s *Store) CreateInstance(ctx context.Context, inst *models.Instance) error {
	q := s.db.Rebind(`INSERT INTO instances (id, instance_key, organization_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, inst.ID, inst.InstanceKey, inst.OrganizationID, inst.Status, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create instance %s: %w", inst.InstanceKey, err)
	}
	return nil
}

func (s *Store) UpdateInstanceStatus(ctx context.Context, instanceKey, status string) error {
	q := s.db.Rebind(`UPDATE instances SET status = ?, updated_at = ? WHERE instance_key = ?`)
	res, err := s.db.ExecContext(ctx, q, status, time.Now().UTC(), instanceKey)
	if err != nil {
		return fmt.Errorf("store: update instance status %s: %w", instanceKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertConnection writes the mirrored connection projection for an instance.
func (s *Store) UpsertConnection(ctx context.Context, conn *models.Connection) error {
	q := s.db.Rebind(`INSERT INTO connections (instance_key, connected, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (instance_key) DO UPDATE SET connected = excluded.connected, status = excluded.status, updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, q, conn.InstanceKey, conn.Connected, conn.Status, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert connection %s: %w", conn.InstanceKey, err)
	}
	return nil
}

func (s *Store) GetConnection(ctx context.Context, instanceKey string) (*models.Connection, error) {
	var conn models.Connection
	q := s.db.Rebind(`SELECT * FROM connections WHERE instance_key = ?`)
	err := s.db.GetContext(ctx, &conn, q, instanceKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get connection %s: %w", instanceKey, err)
	}
	return &conn, nil
}

// --- Contacts ---

func (s *Store) GetContactByPhone(ctx context.Context, orgID, phone string) (*models.Contact, error) {
	var c models.Contact
	q := s.db.Rebind(`SELECT * FROM contacts WHERE organization_id = ? AND phone = ?`)
	err := s.db.GetContext(ctx, &c, q, orgID, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get contact %s: %w", phone, err)
	}
	return &c, nil
}

func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	q := s.db.Rebind(`INSERT INTO contacts (id, organization_id, phone, name, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, c.ID, c.OrganizationID, c.Phone, c.Name, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create contact %s: %w", c.Phone, err)
	}
	return nil
}

// --- Conversations ---

// FirstConversationByContact returns the earliest conversation for a contact,
// regardless of status. First match wins.
func (s *Store) FirstConversationByContact(ctx context.Context, contactID string) (*models.Conversation, error) {
	var conv models.Conversation
	q := s.db.Rebind(`SELECT * FROM conversations WHERE contact_id = ? ORDER BY started_at LIMIT 1`)
	err := s.db.GetContext(ctx, &conv, q, contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: first conversation for contact %s: %w", contactID, err)
	}
	return &conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	q := s.db.Rebind(`INSERT INTO conversations (id, contact_id, organization_id, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, conv.ID, conv.ContactID, conv.OrganizationID, conv.Status, conv.StartedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create conversation for contact %s: %w", conv.ContactID, err)
	}
	return nil
}

func (s *Store) GetConversationStatus(ctx context.Context, conversationID string) (string, error) {
	var status string
	q := s.db.Rebind(`SELECT status FROM conversations WHERE id = ?`)
	err := s.db.GetContext(ctx, &status, q, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get conversation status %s: %w", conversationID, err)
	}
	return status, nil
}

func (s *Store) UpdateConversationStatus(ctx context.Context, conversationID, status string) error {
	q := s.db.Rebind(`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, status, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("store: update conversation status %s: %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Messages ---

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	q := s.db.Rebind(`INSERT INTO messages (id, conversation_id, organization_id, sender, content, gateway_id, delivery_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, m.ID, m.ConversationID, m.OrganizationID, m.Sender, m.Content, m.GatewayID, m.DeliveryStatus, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create message in conversation %s: %w", m.ConversationID, err)
	}
	return nil
}

// HasRecentContactMessage reports whether a contact-authored message with the
// same content exists in the conversation since the given time. This is the
// content-based dedup window check, not a strong idempotency key.
func (s *Store) HasRecentContactMessage(ctx context.Context, conversationID, content string, since time.Time) (bool, error) {
	var count int
	q := s.db.Rebind(`SELECT COUNT(1) FROM messages WHERE conversation_id = ? AND content = ? AND sender = ? AND created_at >= ?`)
	err := s.db.GetContext(ctx, &count, q, conversationID, content, models.SenderContact, since)
	if err != nil {
		return false, fmt.Errorf("store: dedup check for conversation %s: %w", conversationID, err)
	}
	return count > 0, nil
}

// UpdateMessageDeliveryStatus mutates only the delivery-status field of the
// message identified by its gateway id. Content is never touched.
func (s *Store) UpdateMessageDeliveryStatus(ctx context.Context, gatewayID, status string) error {
	q := s.db.Rebind(`UPDATE messages SET delivery_status = ? WHERE gateway_id = ?`)
	res, err := s.db.ExecContext(ctx, q, status, gatewayID)
	if err != nil {
		return fmt.Errorf("store: update delivery status %s: %w", gatewayID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentInboundMessages returns contact-authored messages created since the
// given time for one organization, oldest first. Read-only path for the
// notification poller.
func (s *Store) ListRecentInboundMessages(ctx context.Context, orgID string, since time.Time) ([]models.Message, error) {
	var out []models.Message
	q := s.db.Rebind(`SELECT * FROM messages WHERE organization_id = ? AND sender = ? AND created_at >= ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &out, q, orgID, models.SenderContact, since); err != nil {
		return nil, fmt.Errorf("store: list recent inbound messages for %s: %w", orgID, err)
	}
	return out, nil
}

// ListMessagesByConversation returns the full history for a conversation,
// oldest first.
func (s *Store) ListMessagesByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	q := s.db.Rebind(`SELECT * FROM messages WHERE conversation_id = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &out, q, conversationID); err != nil {
		return nil, fmt.Errorf("store: list messages for conversation %s: %w", conversationID, err)
	}
	return out, nil
}

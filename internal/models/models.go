package models

import "time"

// Instance statuses mirror what the messaging gateway reports.
const (
	InstanceStatusPending      = "pending"
	InstanceStatusActive       = "active"
	InstanceStatusDisconnected = "disconnected"
)

// Conversation statuses. The status column is the single authority on whether
// automated replies are suppressed for a conversation.
const (
	ConversationStatusAI    = "ai"
	ConversationStatusHuman = "human"
)

// Message sender kinds.
const (
	SenderContact = "contact"
	SenderSystem  = "system"
	SenderUser    = "user"
	SenderAI      = "ai"
)

// Instance is a single messaging-channel connection tracked per organization.
// One instance key maps to exactly one organization.
type Instance struct {
	ID             string    `db:"id" json:"id"`
	InstanceKey    string    `db:"instance_key" json:"instance_key"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Connection is the secondary record mirroring the live gateway state for an
// instance. It is a projection of Instance.Status, not a second source of truth.
type Connection struct {
	InstanceKey string    `db:"instance_key" json:"instance_key"`
	Connected   bool      `db:"connected" json:"connected"`
	Status      string    `db:"status" json:"status"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Contact is unique per (phone, organization).
type Contact struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Phone          string    `db:"phone" json:"phone"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Conversation groups messages for one contact.
type Conversation struct {
	ID             string    `db:"id" json:"id"`
	ContactID      string    `db:"contact_id" json:"contact_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Status         string    `db:"status" json:"status"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Message is immutable once persisted except for DeliveryStatus, which
// status-update events from the gateway may mutate.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Sender         string    `db:"sender" json:"sender"`
	Content        string    `db:"content" json:"content"`
	GatewayID      string    `db:"gateway_id" json:"gateway_id"`
	DeliveryStatus string    `db:"delivery_status" json:"delivery_status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

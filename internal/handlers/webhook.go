package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/events"
	"zapdesk/internal/gateway"
	"zapdesk/internal/models"
	"zapdesk/internal/services"
	"zapdesk/internal/store"
)

// Acknowledgement notes for events that are accepted without processing.
const (
	NoteNoInstance       = "no resolvable instance, event ignored"
	NoteUnknownInstance  = "instance not registered, event ignored"
	NoteWrongOrg         = "instance belongs to another organization, event ignored"
	NoteDuplicateIgnored = "duplicate ignored"
	NoteEventIgnored     = "event ignored"
	NoteStatusUpdated    = "delivery status updated"
	NoteUnknownMessage   = "status update for unknown message, event ignored"
)

// IngestorStore is the slice of the store the ingestor itself touches. The
// resolvers and the state machine carry their own slices.
type IngestorStore interface {
	GetInstanceByKey(ctx context.Context, instanceKey string) (*models.Instance, error)
	ListActiveInstances(ctx context.Context, orgID string) ([]models.Instance, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	UpdateMessageDeliveryStatus(ctx context.Context, gatewayID, status string) error
}

// Response is the webhook's JSON acknowledgement body.
type Response struct {
	Success bool   `json:"success"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WebhookHandler is the HTTP entry point for gateway webhook deliveries. It
// normalizes the payload, resolves the target instance and drives the inbound
// pipeline. Duplicate or unaddressable events are always acknowledged with
// success so the gateway does not retry them.
type WebhookHandler struct {
	store         IngestorStore
	statusSync    *services.InstanceStatusService
	contacts      *services.ContactResolver
	conversations *services.ConversationResolver
	dedup         *services.MessageDeduplicator
	handoff       *services.HandoffService
	publisher     *events.Publisher
	instanceCache *gocache.Cache
}

// NewWebhookHandler creates a WebhookHandler with its dependencies.
func NewWebhookHandler(
	st IngestorStore,
	statusSync *services.InstanceStatusService,
	contacts *services.ContactResolver,
	conversations *services.ConversationResolver,
	dedup *services.MessageDeduplicator,
	handoff *services.HandoffService,
	publisher *events.Publisher,
) *WebhookHandler {
	if st == nil {
		log.Fatal().Msg("Store cannot be nil for WebhookHandler")
	}
	if statusSync == nil {
		log.Fatal().Msg("InstanceStatusService cannot be nil for WebhookHandler")
	}
	if contacts == nil {
		log.Fatal().Msg("ContactResolver cannot be nil for WebhookHandler")
	}
	if conversations == nil {
		log.Fatal().Msg("ConversationResolver cannot be nil for WebhookHandler")
	}
	if dedup == nil {
		log.Fatal().Msg("MessageDeduplicator cannot be nil for WebhookHandler")
	}
	if handoff == nil {
		log.Fatal().Msg("HandoffService cannot be nil for WebhookHandler")
	}
	return &WebhookHandler{
		store:         st,
		statusSync:    statusSync,
		contacts:      contacts,
		conversations: conversations,
		dedup:         dedup,
		handoff:       handoff,
		publisher:     publisher,
		instanceCache: gocache.New(30*time.Second, time.Minute),
	}
}

// Register mounts the webhook route on the router.
func (h *WebhookHandler) Register(r *mux.Router) {
	r.HandleFunc("/webhooks/{orgID}/messaging", h.Handle).Methods(http.MethodPost)
}

// Handle processes one webhook delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := mux.Vars(r)["orgID"]

	var ev gateway.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		log.Error().Err(err).Msg("Failed to decode webhook payload")
		respondWithJSON(w, http.StatusBadRequest, Response{Success: false, Error: "invalid JSON payload"})
		return
	}

	inst, note := h.resolveInstance(ctx, orgID, &ev)
	if inst == nil {
		log.Warn().Str("orgID", orgID).Str("note", note).Msg("Event acknowledged without processing")
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: note})
		return
	}

	// Mirror the gateway's connection truth before anything else. A failing
	// status check aborts the whole delivery with the gateway's own code.
	if err := h.statusSync.Sync(ctx, inst.InstanceKey); err != nil {
		code := http.StatusInternalServerError
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.StatusCode
		}
		log.Error().Err(err).Str("instanceKey", inst.InstanceKey).Msg("Gateway status check failed, aborting webhook")
		respondWithJSON(w, code, Response{Success: false, Error: err.Error()})
		return
	}
	// The status write may have changed the cached instance row.
	h.instanceCache.Delete(inst.InstanceKey)

	if ev.IsStatusUpdate() {
		h.handleStatusUpdate(ctx, w, &ev)
		return
	}

	if !ev.IsInboundMessage() {
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: NoteEventIgnored})
		return
	}

	h.handleInbound(ctx, w, inst, &ev)
}

// resolveInstance applies the resolution priority chain, ending with the
// fallback lookup for the single active instance of the organization. A nil
// instance means the event must be soft-accepted with the returned note.
func (h *WebhookHandler) resolveInstance(ctx context.Context, orgID string, ev *gateway.Event) (*models.Instance, string) {
	key := ev.InstanceKey()
	if key == "" {
		actives, err := h.store.ListActiveInstances(ctx, orgID)
		if err != nil {
			log.Error().Err(err).Str("orgID", orgID).Msg("Fallback instance lookup failed")
			return nil, NoteNoInstance
		}
		if len(actives) != 1 {
			log.Debug().Str("orgID", orgID).Int("candidates", len(actives)).Msg("Fallback resolution needs exactly one active instance")
			return nil, NoteNoInstance
		}
		return &actives[0], ""
	}

	if cached, found := h.instanceCache.Get(key); found {
		inst := cached.(*models.Instance)
		if inst.OrganizationID != orgID {
			return nil, NoteWrongOrg
		}
		return inst, ""
	}

	inst, err := h.store.GetInstanceByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NoteUnknownInstance
	}
	if err != nil {
		log.Error().Err(err).Str("instanceKey", key).Msg("Instance lookup failed")
		return nil, NoteUnknownInstance
	}
	if inst.OrganizationID != orgID {
		return nil, NoteWrongOrg
	}
	h.instanceCache.SetDefault(key, inst)
	return inst, ""
}

// handleStatusUpdate mutates only the delivery-status field of an existing
// message; content is immutable.
func (h *WebhookHandler) handleStatusUpdate(ctx context.Context, w http.ResponseWriter, ev *gateway.Event) {
	err := h.store.UpdateMessageDeliveryStatus(ctx, ev.MessageID, ev.Status)
	if errors.Is(err, store.ErrNotFound) {
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: NoteUnknownMessage})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("messageId", ev.MessageID).Msg("Failed to update delivery status")
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: "delivery status write failed"})
		return
	}
	respondWithJSON(w, http.StatusOK, Response{Success: true, Note: NoteStatusUpdated})
}

// handleInbound runs contact and conversation resolution, the dedup window
// check, message persistence and the handoff state machine for one newly
// received message.
func (h *WebhookHandler) handleInbound(ctx context.Context, w http.ResponseWriter, inst *models.Instance, ev *gateway.Event) {
	phone := ev.SenderPhone()
	if phone == "" {
		log.Warn().Str("instanceKey", inst.InstanceKey).Msg("Inbound message without sender phone")
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: NoteEventIgnored})
		return
	}

	contact, err := h.contacts.Resolve(ctx, inst.OrganizationID, phone, ev.PushName)
	if err != nil {
		// Acknowledge so the gateway does not retry this event.
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: "contact resolution failed"})
		return
	}

	conv, err := h.conversations.Resolve(ctx, contact)
	if err != nil {
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: "conversation resolution failed"})
		return
	}

	content := ev.ParseContent()
	text := content.Text()

	dup, err := h.dedup.IsDuplicate(ctx, conv.ID, text)
	if err != nil {
		// Best effort: a failing dedup check never drops a message.
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Dedup check failed, treating message as new")
	}
	if dup {
		log.Info().Str("conversationID", conv.ID).Msg("Duplicate inbound message ignored")
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: NoteDuplicateIgnored})
		return
	}

	gatewayID := ""
	if ev.Key != nil {
		gatewayID = ev.Key.ID
	}
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		OrganizationID: inst.OrganizationID,
		Sender:         models.SenderContact,
		Content:        text,
		GatewayID:      gatewayID,
		DeliveryStatus: "received",
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		// No persisted message means nothing for the state machine to act on.
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Failed to persist inbound message")
		respondWithJSON(w, http.StatusOK, Response{Success: true, Note: "message persistence failed"})
		return
	}

	if h.publisher != nil {
		h.publisher.Publish("message.received", msg)
	}

	note := h.handoff.Handle(ctx, conv, msg, content, inst.InstanceKey, phone)
	respondWithJSON(w, http.StatusOK, Response{Success: true, Note: note})
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/autoreply"
	"zapdesk/internal/gateway"
	"zapdesk/internal/models"
)

// Fixed reply texts for the handoff flow.
const (
	HandoffAckText    = "Perfeito! Em instantes um de nossos atendentes vai assumir essa conversa."
	ContinueAIDefault = "Sem problemas! Vou continuar te ajudando por aqui."
)

// Outcome notes returned to the ingestor for its acknowledgement body.
const (
	NoteHandoffConfirmed = "conversation handed off to human attendance"
	NoteHandoffDeclined  = "ai attendance continues"
	NoteHumanActive      = "conversation in human attendance, AI does not respond"
	NoteReplyDispatched  = "reply generation dispatched"
	NoteNoDecision       = "confirmation could not be classified, no reply sent"
)

// HandoffStore is the slice of the store the state machine needs.
type HandoffStore interface {
	GetConversationStatus(ctx context.Context, conversationID string) (string, error)
	UpdateConversationStatus(ctx context.Context, conversationID, status string) error
	CreateMessage(ctx context.Context, m *models.Message) error
}

// TextSender delivers outbound text through the gateway.
type TextSender interface {
	SendText(ctx context.Context, req gateway.SendTextRequest) error
}

// ReplyService is the automated reply collaborator.
type ReplyService interface {
	GenerateReply(ctx context.Context, conversationID, messageID string) (string, error)
	ParseConfirmation(ctx context.Context, text string) (*autoreply.ConfirmationResult, error)
}

// HandoffService transitions conversations between AI and human attendance and
// produces the outbound reply for each inbound turn. The machine is memory-less
// between turns: the persisted conversation status is its only state, and every
// inbound message is classified independently.
type HandoffService struct {
	store      HandoffStore
	sender     TextSender
	reply      ReplyService
	dispatcher Dispatcher
}

// NewHandoffService creates a HandoffService.
func NewHandoffService(st HandoffStore, sender TextSender, reply ReplyService, dispatcher Dispatcher) (*HandoffService, error) {
	if st == nil {
		return nil, fmt.Errorf("handoff store cannot be nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("text sender cannot be nil")
	}
	if reply == nil {
		return nil, fmt.Errorf("reply service cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &HandoffService{store: st, sender: sender, reply: reply, dispatcher: dispatcher}, nil
}

// Handle applies the state machine to one accepted inbound message. Every
// branch catches its own send and persist failures; the returned note always
// reflects an acknowledged event.
func (s *HandoffService) Handle(ctx context.Context, conv *models.Conversation, msg *models.Message, content gateway.Content, instanceKey, contactPhone string) string {
	switch c := content.(type) {
	case gateway.ButtonReplyContent:
		switch ClassifyButton(c.ID) {
		case IntentConfirm:
			return s.confirmHandoff(ctx, conv, instanceKey, contactPhone)
		case IntentCancel:
			return s.continueAI(ctx, conv, instanceKey, contactPhone, "")
		}
		// Unknown button ids fall through to ordinary handling of the title.
		return s.ordinary(ctx, conv, msg, instanceKey, contactPhone)

	case gateway.TextContent:
		if ClassifyText(c.Body) == IntentCandidate {
			return s.settleCandidate(ctx, conv, instanceKey, contactPhone, c.Body)
		}
		return s.ordinary(ctx, conv, msg, instanceKey, contactPhone)

	default:
		return s.ordinary(ctx, conv, msg, instanceKey, contactPhone)
	}
}

// settleCandidate hands a pre-filtered confirmation candidate to the reply
// service's confirmation parser for the final decision.
func (s *HandoffService) settleCandidate(ctx context.Context, conv *models.Conversation, instanceKey, contactPhone, text string) string {
	result, err := s.reply.ParseConfirmation(ctx, text)
	if err != nil {
		// Status stays unchanged and no reply goes out.
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Confirmation parsing failed")
		return NoteNoDecision
	}
	if result.Handoff {
		return s.confirmHandoff(ctx, conv, instanceKey, contactPhone)
	}
	return s.continueAI(ctx, conv, instanceKey, contactPhone, result.Reply)
}

// confirmHandoff moves the conversation to human attendance and acknowledges
// it to the contact.
func (s *HandoffService) confirmHandoff(ctx context.Context, conv *models.Conversation, instanceKey, contactPhone string) string {
	if err := s.store.UpdateConversationStatus(ctx, conv.ID, models.ConversationStatusHuman); err != nil {
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Failed to write human attendance status")
	} else {
		log.Info().Str("conversationID", conv.ID).Msg("Conversation handed off to human attendance")
	}
	s.sendOrPersist(ctx, conv, instanceKey, contactPhone, HandoffAckText)
	return NoteHandoffConfirmed
}

// continueAI keeps the conversation in AI attendance and sends the
// continuation text, defaulting when the reply service supplied none.
func (s *HandoffService) continueAI(ctx context.Context, conv *models.Conversation, instanceKey, contactPhone, reply string) string {
	if reply == "" {
		reply = ContinueAIDefault
	}
	s.sendOrPersist(ctx, conv, instanceKey, contactPhone, reply)
	return NoteHandoffDeclined
}

// ordinary handles any inbound message with no handoff meaning. The status is
// re-read from the store right before dispatching, so a concurrent operator
// takeover wins over a stale in-memory conversation.
func (s *HandoffService) ordinary(ctx context.Context, conv *models.Conversation, msg *models.Message, instanceKey, contactPhone string) string {
	status, err := s.store.GetConversationStatus(ctx, conv.ID)
	if err != nil {
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Failed to re-read conversation status, using resolved value")
		status = conv.Status
	}
	if status == models.ConversationStatusHuman {
		log.Debug().Str("conversationID", conv.ID).Msg("Conversation in human attendance, suppressing automated reply")
		return NoteHumanActive
	}

	messageID := msg.ID
	s.dispatcher.Dispatch("generate-reply", func(taskCtx context.Context) error {
		reply, err := s.reply.GenerateReply(taskCtx, conv.ID, messageID)
		if err != nil {
			return fmt.Errorf("generate reply for conversation %s: %w", conv.ID, err)
		}
		if reply == "" {
			return nil
		}
		s.sendOrPersist(taskCtx, conv, instanceKey, contactPhone, reply)
		return nil
	})
	return NoteReplyDispatched
}

// sendOrPersist sends the text through the gateway, recording exactly one
// outbound message row: authored by the AI when the send succeeded, or by the
// system when the send failed and the text was persisted locally instead.
func (s *HandoffService) sendOrPersist(ctx context.Context, conv *models.Conversation, instanceKey, contactPhone, text string) {
	sender := models.SenderAI
	err := s.sender.SendText(ctx, gateway.SendTextRequest{
		InstanceKey:    instanceKey,
		Phone:          contactPhone,
		Text:           text,
		OrganizationID: conv.OrganizationID,
	})
	if err != nil {
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Gateway send failed, persisting text as system message")
		sender = models.SenderSystem
	}

	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		OrganizationID: conv.OrganizationID,
		Sender:         sender,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	if perr := s.store.CreateMessage(ctx, m); perr != nil {
		log.Error().Err(perr).Str("conversationID", conv.ID).Msg("Failed to persist outbound message")
	}
}

package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/autoreply"
	"zapdesk/internal/gateway"
	"zapdesk/internal/models"
)

// syncDispatcher runs tasks inline so tests observe their effects.
type syncDispatcher struct {
	errs []error
}

func (d *syncDispatcher) Dispatch(_ string, task func(ctx context.Context) error) {
	d.errs = append(d.errs, task(context.Background()))
}

type fakeHandoffStore struct {
	status       map[string]string
	messages     []*models.Message
	updateErr    error
	createErr    error
	getStatusErr error
}

func newFakeHandoffStore(convID, status string) *fakeHandoffStore {
	return &fakeHandoffStore{status: map[string]string{convID: status}}
}

func (s *fakeHandoffStore) GetConversationStatus(_ context.Context, conversationID string) (string, error) {
	if s.getStatusErr != nil {
		return "", s.getStatusErr
	}
	return s.status[conversationID], nil
}

func (s *fakeHandoffStore) UpdateConversationStatus(_ context.Context, conversationID, status string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.status[conversationID] = status
	return nil
}

func (s *fakeHandoffStore) CreateMessage(_ context.Context, m *models.Message) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.messages = append(s.messages, m)
	return nil
}

type fakeSender struct {
	sent    []gateway.SendTextRequest
	sendErr error
}

func (s *fakeSender) SendText(_ context.Context, req gateway.SendTextRequest) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, req)
	return nil
}

type fakeReplyService struct {
	confirmation     *autoreply.ConfirmationResult
	confirmationErr  error
	generated        string
	generateErr      error
	generateCalls    int
	parseCalls       int
	lastParsedText   string
	lastGeneratedMsg string
}

func (r *fakeReplyService) GenerateReply(_ context.Context, _, messageID string) (string, error) {
	r.generateCalls++
	r.lastGeneratedMsg = messageID
	return r.generated, r.generateErr
}

func (r *fakeReplyService) ParseConfirmation(_ context.Context, text string) (*autoreply.ConfirmationResult, error) {
	r.parseCalls++
	r.lastParsedText = text
	return r.confirmation, r.confirmationErr
}

func testConversation(status string) *models.Conversation {
	return &models.Conversation{ID: "conv-1", ContactID: "contact-1", OrganizationID: "org-1", Status: status}
}

func testMessage() *models.Message {
	return &models.Message{ID: "msg-1", ConversationID: "conv-1", OrganizationID: "org-1", Sender: models.SenderContact}
}

func newHandoffFixture(t *testing.T, convStatus string) (*HandoffService, *fakeHandoffStore, *fakeSender, *fakeReplyService, *syncDispatcher) {
	t.Helper()
	st := newFakeHandoffStore("conv-1", convStatus)
	sender := &fakeSender{}
	reply := &fakeReplyService{}
	dispatcher := &syncDispatcher{}
	svc, err := NewHandoffService(st, sender, reply, dispatcher)
	require.NoError(t, err)
	return svc, st, sender, reply, dispatcher
}

func TestHandoffConfirmButton(t *testing.T) {
	svc, st, sender, _, _ := newHandoffFixture(t, models.ConversationStatusAI)

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.ButtonReplyContent{ID: ButtonConfirmHandoff, Title: "Sim"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHandoffConfirmed, note)
	assert.Equal(t, models.ConversationStatusHuman, st.status["conv-1"])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, HandoffAckText, sender.sent[0].Text)
	assert.Equal(t, "5511999990000", sender.sent[0].Phone)
	// Exactly one outbound acknowledgement row, authored by the AI on success.
	require.Len(t, st.messages, 1)
	assert.Equal(t, models.SenderAI, st.messages[0].Sender)
	assert.Equal(t, HandoffAckText, st.messages[0].Content)
}

func TestHandoffConfirmButtonSendFailureFallsBackToSystemMessage(t *testing.T) {
	svc, st, sender, _, _ := newHandoffFixture(t, models.ConversationStatusAI)
	sender.sendErr = fmt.Errorf("gateway unreachable")

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.ButtonReplyContent{ID: ButtonConfirmHandoff, Title: "Sim"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHandoffConfirmed, note)
	assert.Equal(t, models.ConversationStatusHuman, st.status["conv-1"])
	require.Len(t, st.messages, 1)
	assert.Equal(t, models.SenderSystem, st.messages[0].Sender)
	assert.Equal(t, HandoffAckText, st.messages[0].Content)
}

func TestHandoffCancelButtonSendsDefaultContinuation(t *testing.T) {
	svc, st, sender, _, _ := newHandoffFixture(t, models.ConversationStatusAI)

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.ButtonReplyContent{ID: ButtonCancelHandoff, Title: "Não"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHandoffDeclined, note)
	assert.Equal(t, models.ConversationStatusAI, st.status["conv-1"])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, ContinueAIDefault, sender.sent[0].Text)
}

func TestHandoffCandidateConfirmed(t *testing.T) {
	svc, st, sender, reply, _ := newHandoffFixture(t, models.ConversationStatusAI)
	reply.confirmation = &autoreply.ConfirmationResult{Handoff: true}

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "sim, pode ser"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHandoffConfirmed, note)
	assert.Equal(t, 1, reply.parseCalls)
	assert.Equal(t, "sim, pode ser", reply.lastParsedText)
	assert.Equal(t, models.ConversationStatusHuman, st.status["conv-1"])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, HandoffAckText, sender.sent[0].Text)
}

func TestHandoffCandidateDeclinedUsesServiceReply(t *testing.T) {
	svc, st, sender, reply, _ := newHandoffFixture(t, models.ConversationStatusAI)
	reply.confirmation = &autoreply.ConfirmationResult{Handoff: false, Reply: "Certo, seguimos por aqui!"}

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "sim, pode ser"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHandoffDeclined, note)
	assert.Equal(t, models.ConversationStatusAI, st.status["conv-1"])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Certo, seguimos por aqui!", sender.sent[0].Text)
}

func TestHandoffConfirmationParseFailureLeavesStateUntouched(t *testing.T) {
	svc, st, sender, reply, _ := newHandoffFixture(t, models.ConversationStatusAI)
	reply.confirmationErr = fmt.Errorf("service down")

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "sim, pode ser"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteNoDecision, note)
	assert.Equal(t, models.ConversationStatusAI, st.status["conv-1"])
	assert.Empty(t, sender.sent)
	assert.Empty(t, st.messages)
}

func TestHandoffHumanAttendanceSuppressesReply(t *testing.T) {
	svc, st, sender, reply, dispatcher := newHandoffFixture(t, models.ConversationStatusHuman)

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusHuman), testMessage(),
		gateway.TextContent{Body: "Olá, alguém aí?"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHumanActive, note)
	assert.Equal(t, 0, reply.generateCalls)
	assert.Empty(t, sender.sent)
	assert.Empty(t, st.messages)
	assert.Empty(t, dispatcher.errs)
}

func TestHandoffStatusRereadWinsOverStaleConversation(t *testing.T) {
	// The store says human even though the resolved conversation still says
	// ai: a concurrent operator takeover must suppress the automated reply.
	svc, _, sender, reply, _ := newHandoffFixture(t, models.ConversationStatusHuman)

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "Olá"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteHumanActive, note)
	assert.Equal(t, 0, reply.generateCalls)
	assert.Empty(t, sender.sent)
}

func TestHandoffOrdinaryTextDispatchesGeneratedReply(t *testing.T) {
	svc, st, sender, reply, dispatcher := newHandoffFixture(t, models.ConversationStatusAI)
	reply.generated = "Posso ajudar com o seu pedido!"

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "Olá"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteReplyDispatched, note)
	assert.Equal(t, 1, reply.generateCalls)
	assert.Equal(t, "msg-1", reply.lastGeneratedMsg)
	require.Len(t, dispatcher.errs, 1)
	assert.NoError(t, dispatcher.errs[0])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Posso ajudar com o seu pedido!", sender.sent[0].Text)
	require.Len(t, st.messages, 1)
	assert.Equal(t, models.SenderAI, st.messages[0].Sender)
}

func TestHandoffGenerateFailureSurfacesOnTaskChannelOnly(t *testing.T) {
	svc, st, sender, reply, dispatcher := newHandoffFixture(t, models.ConversationStatusAI)
	reply.generateErr = fmt.Errorf("model overloaded")

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.TextContent{Body: "Olá"}, "inst-1", "5511999990000")

	// The webhook path still acknowledges; the failure lives on the task.
	assert.Equal(t, NoteReplyDispatched, note)
	require.Len(t, dispatcher.errs, 1)
	assert.Error(t, dispatcher.errs[0])
	assert.Empty(t, sender.sent)
	assert.Empty(t, st.messages)
}

func TestHandoffUnknownButtonFallsThroughToOrdinary(t *testing.T) {
	svc, _, _, reply, _ := newHandoffFixture(t, models.ConversationStatusAI)
	reply.generated = "ok"

	note := svc.Handle(context.Background(), testConversation(models.ConversationStatusAI), testMessage(),
		gateway.ButtonReplyContent{ID: "view_catalog", Title: "Ver catálogo"}, "inst-1", "5511999990000")

	assert.Equal(t, NoteReplyDispatched, note)
	assert.Equal(t, 1, reply.generateCalls)
	assert.Equal(t, 0, reply.parseCalls)
}

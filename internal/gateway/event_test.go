package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInstanceKeyPriority(t *testing.T) {
	ev := Event{
		Instance:     "primary",
		InstanceName: "secondary",
		InstanceID:   "tertiary",
		Key:          &EventKey{RemoteJID: "5511999990000@s.whatsapp.net"},
	}
	assert.Equal(t, "primary", ev.InstanceKey())

	ev.Instance = ""
	assert.Equal(t, "secondary", ev.InstanceKey())

	ev.InstanceName = ""
	assert.Equal(t, "tertiary", ev.InstanceKey())

	ev.InstanceID = ""
	assert.Equal(t, "5511999990000", ev.InstanceKey(), "remote identifier suffix must be stripped")

	ev.Key = nil
	assert.Equal(t, "", ev.InstanceKey())
}

func TestEventSenderPhone(t *testing.T) {
	ev := Event{Key: &EventKey{RemoteJID: "5511999990000@s.whatsapp.net"}}
	assert.Equal(t, "5511999990000", ev.SenderPhone())

	assert.Equal(t, "", (&Event{}).SenderPhone())
}

func TestEventDiscriminators(t *testing.T) {
	inbound := Event{MessageType: "conversation", Key: &EventKey{FromMe: false}}
	assert.True(t, inbound.IsInboundMessage())
	assert.False(t, inbound.IsStatusUpdate())

	echo := Event{MessageType: "conversation", Key: &EventKey{FromMe: true}}
	assert.False(t, echo.IsInboundMessage())

	status := Event{MessageID: "GW1", Status: "delivered"}
	assert.True(t, status.IsStatusUpdate())
	assert.False(t, status.IsInboundMessage())
}

func TestParseContent(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		message     string
		want        Content
		wantText    string
	}{
		{
			name:        "conversation",
			messageType: "conversation",
			message:     `{"conversation":"Olá"}`,
			want:        TextContent{Body: "Olá"},
			wantText:    "Olá",
		},
		{
			name:        "extended text",
			messageType: "extendedTextMessage",
			message:     `{"extendedTextMessage":{"text":"oi, tudo bem?"}}`,
			want:        TextContent{Body: "oi, tudo bem?"},
			wantText:    "oi, tudo bem?",
		},
		{
			name:        "button reply",
			messageType: "interactive",
			message:     `{"interactive":{"buttonReply":{"id":"confirm_handoff","title":"Falar com atendente"}}}`,
			want:        ButtonReplyContent{ID: "confirm_handoff", Title: "Falar com atendente"},
			wantText:    "Falar com atendente",
		},
		{
			name:        "opaque type echoed in brackets",
			messageType: "imageMessage",
			message:     `{"imageMessage":{"url":"https://example.com/x.jpg"}}`,
			want:        OpaqueContent{Type: "imageMessage"},
			wantText:    "[imageMessage]",
		},
		{
			name:        "missing body falls back to opaque",
			messageType: "extendedTextMessage",
			message:     `{}`,
			want:        OpaqueContent{Type: "extendedTextMessage"},
			wantText:    "[extendedTextMessage]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{MessageType: tt.messageType, Message: json.RawMessage(tt.message)}
			got := ev.ParseContent()
			require.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantText, got.Text())
		})
	}
}

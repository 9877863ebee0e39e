package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// remoteJIDSuffix is appended by the gateway to phone-addressed identifiers.
const remoteJIDSuffix = "@s.whatsapp.net"

// Event is a single webhook delivery from the messaging gateway. Message
// events carry MessageType, Key and Message; status-update events carry
// MessageID and Status instead.
type Event struct {
	Instance     string          `json:"instance"`
	InstanceName string          `json:"instanceName"`
	InstanceID   string          `json:"instanceId"`
	MessageType  string          `json:"messageType"`
	Key          *EventKey       `json:"key"`
	PushName     string          `json:"pushName"`
	Message      json.RawMessage `json:"message"`
	MessageID    string          `json:"messageId"`
	Status       string          `json:"status"`
}

// EventKey addresses the message within the gateway.
type EventKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// InstanceKey resolves the target instance key from the payload, in priority
// order: explicit field, alternate field names, then the remote identifier
// with its fixed suffix stripped. Empty means none of them were present.
func (e *Event) InstanceKey() string {
	if e.Instance != "" {
		return e.Instance
	}
	if e.InstanceName != "" {
		return e.InstanceName
	}
	if e.InstanceID != "" {
		return e.InstanceID
	}
	if e.Key != nil && e.Key.RemoteJID != "" {
		return strings.TrimSuffix(e.Key.RemoteJID, remoteJIDSuffix)
	}
	return ""
}

// SenderPhone derives the contact phone from the remote identifier.
func (e *Event) SenderPhone() string {
	if e.Key == nil {
		return ""
	}
	return strings.TrimSuffix(e.Key.RemoteJID, remoteJIDSuffix)
}

// IsInboundMessage reports whether the event represents a newly received
// message from the contact side, as opposed to an echo of our own sends or a
// status update.
func (e *Event) IsInboundMessage() bool {
	return e.MessageType != "" && e.Key != nil && !e.Key.FromMe
}

// IsStatusUpdate reports whether the event only changes a message's delivery
// status.
func (e *Event) IsStatusUpdate() bool {
	return e.MessageType == "" && e.MessageID != "" && e.Status != ""
}

// Content is the tagged union of recognized message shapes.
type Content interface {
	// Text renders the content as the string persisted in the message row.
	Text() string
}

// TextContent is plain conversational text.
type TextContent struct {
	Body string
}

func (c TextContent) Text() string { return c.Body }

// ButtonReplyContent is an interactive button reply with a constrained id.
type ButtonReplyContent struct {
	ID    string
	Title string
}

func (c ButtonReplyContent) Text() string { return c.Title }

// OpaqueContent is any message shape the pipeline does not interpret. The raw
// type string is echoed in brackets.
type OpaqueContent struct {
	Type string
}

func (c OpaqueContent) Text() string { return fmt.Sprintf("[%s]", c.Type) }

type messageBody struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	Interactive *struct {
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"buttonReply"`
	} `json:"interactive"`
}

// ParseContent dispatches on MessageType into one of the content variants.
// Unknown or undecodable shapes come back as OpaqueContent.
func (e *Event) ParseContent() Content {
	opaque := OpaqueContent{Type: e.MessageType}
	if len(e.Message) == 0 {
		return opaque
	}

	var body messageBody
	if err := json.Unmarshal(e.Message, &body); err != nil {
		return opaque
	}

	switch e.MessageType {
	case "conversation":
		return TextContent{Body: body.Conversation}
	case "extendedTextMessage":
		if body.ExtendedTextMessage != nil {
			return TextContent{Body: body.ExtendedTextMessage.Text}
		}
	case "interactive":
		if body.Interactive != nil && body.Interactive.ButtonReply != nil {
			return ButtonReplyContent{ID: body.Interactive.ButtonReply.ID, Title: body.Interactive.ButtonReply.Title}
		}
	}
	return opaque
}

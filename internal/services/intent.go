package services

import "regexp"

// Button reply ids the gateway delivers for the handoff offer.
const (
	ButtonConfirmHandoff = "confirm_handoff"
	ButtonCancelHandoff  = "cancel_handoff"
)

// HandoffIntent is the classifier's verdict for one inbound payload.
type HandoffIntent int

const (
	// IntentNone means ordinary AI handling, nothing handoff-related.
	IntentNone HandoffIntent = iota
	// IntentConfirm is an unambiguous confirmation (button reply).
	IntentConfirm
	// IntentCancel is an unambiguous decline (button reply).
	IntentCancel
	// IntentCandidate is free text that plausibly confirms a handoff offer
	// and must be settled by the reply service's confirmation parser.
	IntentCandidate
)

var (
	affirmativePattern = regexp.MustCompile(`(?i)\b(sim|yes|ok|okay|claro|certo|confirmo?|quero|preciso|pode|perfeito|correto|sure|perfect|correct|want|need)\b`)

	escalationPattern = regexp.MustCompile(`(?i)\b(atendente|humano|agente|pessoa|operador|especialista|suporte|urgente|emerg[êe]ncia|human|agent|person|operator|specialist|support|urgent|emergency)\b` +
		`|\bn[ãa]o\s+(entendo|entendi|consigo)\b|\bcan'?t\b|\bdon'?t\s+understand\b`)
)

// ClassifyButton maps an interactive button reply id to a handoff intent.
// Unknown ids fall through to ordinary handling.
func ClassifyButton(id string) HandoffIntent {
	switch id {
	case ButtonConfirmHandoff:
		return IntentConfirm
	case ButtonCancelHandoff:
		return IntentCancel
	default:
		return IntentNone
	}
}

// ClassifyText flags free text as a confirmation candidate only when it
// matches the affirmative pattern and does not simultaneously match the
// escalation pattern. The escalation pattern wins: "sim, quero falar com
// atendente" is an escalation, not a confirmation.
func ClassifyText(text string) HandoffIntent {
	if text == "" {
		return IntentNone
	}
	if !affirmativePattern.MatchString(text) {
		return IntentNone
	}
	if escalationPattern.MatchString(text) {
		return IntentNone
	}
	return IntentCandidate
}

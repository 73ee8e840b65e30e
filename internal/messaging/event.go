// Package messaging receives WhatsApp events, filters and coalesces them, and
// delivers the agent's replies.
package messaging

import "strings"

// InboundEvent is one chat message as delivered by the WhatsApp transport.
type InboundEvent struct {
	SenderID    string `json:"sender_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	MessageID   string `json:"message_id"`
	IsOutgoing  bool   `json:"is_outgoing"`
}

// HasText reports whether the event carries any text to process.
func (e InboundEvent) HasText() bool {
	return strings.TrimSpace(e.Text) != ""
}

package model

import (
	"time"
)

// DefaultMessageWindow is the number of recent messages kept in a
// ConversationContext.
const DefaultMessageWindow = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ConversationContext is the state carried between turns of one
// conversation. The pipeline reads it during a turn and never writes it;
// the session owning it applies changes after the turn completes.
type ConversationContext struct {
	MerchantID   MerchantID `json:"merchant_id,omitempty"`
	MerchantName string     `json:"merchant_name,omitempty"`
	LastIntent   Intent     `json:"last_intent,omitempty"`
	Messages     []Message  `json:"messages,omitempty"`
	StartedAt    time.Time  `json:"started_at"`

	window int
}

func NewConversationContext(window int) *ConversationContext {
	if window <= 0 {
		window = DefaultMessageWindow
	}
	return &ConversationContext{
		StartedAt: time.Now(),
		window:    window,
	}
}

// HasSubject reports whether a merchant is currently in focus.
func (c *ConversationContext) HasSubject() bool {
	return c != nil && (c.MerchantID != "" || c.MerchantName != "")
}

// SetSubject replaces the merchant in focus.
func (c *ConversationContext) SetSubject(id MerchantID, name string) {
	c.MerchantID = id
	c.MerchantName = name
}

// AddMessage appends a message and drops the oldest ones beyond the window.
func (c *ConversationContext) AddMessage(role Role, text string) {
	window := c.window
	if window <= 0 {
		window = DefaultMessageWindow
	}
	c.Messages = append(c.Messages, Message{Role: role, Text: text, At: time.Now()})
	if over := len(c.Messages) - window; over > 0 {
		c.Messages = append([]Message(nil), c.Messages[over:]...)
	}
}

// Clone returns a copy that can be modified without touching c.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return NewConversationContext(0)
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

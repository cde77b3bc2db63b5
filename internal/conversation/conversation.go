// Package conversation holds the message history a reasoning session is
// conditioned on and renders it as model-readable text.
package conversation

import (
	"bytes"
	"errors"
	"slices"

	"github.com/google/uuid"
)

var errEmptyText = errors.New("text is empty")

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	ID    uuid.UUID
	Role  Role
	Items []Item
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, items ...Item) Message {
	return Message{ID: uuid.New(), Role: role, Items: items}
}

// UserText is shorthand for a user message holding a single text item.
func UserText(text string) Message {
	return NewMessage(RoleUser, PlainTextItem{Text: text})
}

// WithItems returns a copy of m whose body is items. The ID is kept.
func (m Message) WithItems(items ...Item) Message {
	m.Items = slices.Clone(items)
	return m
}

// ReasoningItems returns the reasoning items in m, in order.
func (m Message) ReasoningItems() []ReasoningItem {
	var out []ReasoningItem
	for _, it := range m.Items {
		if r, ok := it.(ReasoningItem); ok {
			out = append(out, r)
		}
	}
	return out
}

// Text returns the concatenated plain text items in m.
func (m Message) Text() string {
	var buf bytes.Buffer
	for _, it := range m.Items {
		if p, ok := it.(PlainTextItem); ok {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(p.Text)
		}
	}
	return buf.String()
}

// Conversation is an ordered message history. The zero value is empty and
// ready to use. Derived conversations share no mutable state with their
// source.
type Conversation struct {
	messages []Message
}

// New creates a conversation from msgs. The slice is copied.
func New(msgs ...Message) *Conversation {
	return &Conversation{messages: slices.Clone(msgs)}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	return slices.Clone(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the final message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Append adds msg to the history. Only the owner of c should call it.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// With returns a derived conversation: the history of c followed by msg.
// c is left untouched.
func (c *Conversation) With(msg Message) *Conversation {
	out := make([]Message, len(c.messages), len(c.messages)+1)
	copy(out, c.messages)
	return &Conversation{messages: append(out, msg)}
}

// WithoutPriorReasoning returns a derived conversation in which every message
// except the last keeps only its plain text items.
func (c *Conversation) WithoutPriorReasoning() *Conversation {
	if len(c.messages) == 0 {
		return &Conversation{}
	}
	out := make([]Message, len(c.messages))
	last := len(c.messages) - 1
	for i, m := range c.messages {
		if i == last {
			out[i] = m
			continue
		}
		var kept []Item
		for _, it := range m.Items {
			if _, ok := it.(PlainTextItem); ok {
				kept = append(kept, it)
			}
		}
		out[i] = m.WithItems(kept...)
	}
	return &Conversation{messages: out}
}

// ReasoningTitles returns the titles of every reasoning item in the
// conversation, in order.
func (c *Conversation) ReasoningTitles() []string {
	var titles []string
	for _, m := range c.messages {
		for _, r := range m.ReasoningItems() {
			titles = append(titles, r.Title)
		}
	}
	return titles
}

package conversation

import "strings"

// Item is one element of a message body.
type Item interface {
	element() element
}

// ReasoningItem is one discrete step of chain-of-thought produced before the
// final answer.
type ReasoningItem struct {
	Title      string `json:"title" description:"A short summary of the reasoning content, digestible in an interface."`
	Content    string `json:"content" description:"The content of the reasoning item, which is your thinking process or explanation."`
	EvalNeeded bool   `json:"eval_needed" description:"Whether the reasoning process should be evaluated for completeness now. Set it only when you believe the reasoning is done; the evaluation may still decide more reasoning is needed."`
}

func (r ReasoningItem) element() element {
	return element{name: "ReasoningItem", title: r.Title, text: r.Content, hasTitle: true}
}

// Partial returns r as a fully populated partial view.
func (r ReasoningItem) Partial() PartialReasoningItem {
	title, content, eval := r.Title, r.Content, r.EvalNeeded
	return PartialReasoningItem{Title: &title, Content: &content, EvalNeeded: &eval}
}

// PartialReasoningItem is a ReasoningItem mid-generation. Nil fields have not
// started arriving yet.
type PartialReasoningItem struct {
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
	EvalNeeded *bool   `json:"eval_needed,omitempty"`
}

// TitleText returns the title or "" if none has arrived.
func (p PartialReasoningItem) TitleText() string {
	if p.Title == nil {
		return ""
	}
	return *p.Title
}

// ContentText returns the content or "" if none has arrived.
func (p PartialReasoningItem) ContentText() string {
	if p.Content == nil {
		return ""
	}
	return *p.Content
}

// IsEmpty reports whether nothing has arrived yet.
func (p PartialReasoningItem) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.EvalNeeded == nil
}

// PlainTextItem is visible text: a user question or the final answer.
type PlainTextItem struct {
	Text string `json:"text" description:"The text content of the plain text item, which is your final response to be shown to the user."`
}

func (p PlainTextItem) element() element {
	return element{name: "text", text: p.Text}
}

// Validate rejects an answer with no visible text.
func (p *PlainTextItem) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return errEmptyText
	}
	return nil
}

// PartialPlainText is a PlainTextItem mid-generation.
type PartialPlainText struct {
	Text *string `json:"text,omitempty"`
}

// String returns the text received so far.
func (p PartialPlainText) String() string {
	if p.Text == nil {
		return ""
	}
	return *p.Text
}

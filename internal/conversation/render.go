package conversation

import (
	"encoding/xml"
	"strings"
)

// element is the rendered form of an Item.
type element struct {
	name     string
	title    string
	hasTitle bool
	text     string
}

func (e element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.name}}
	if e.hasTitle {
		start.Attr = []xml.Attr{{Name: xml.Name{Local: "title"}, Value: e.title}}
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.text != "" {
		if err := enc.EncodeToken(xml.CharData(e.text)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

type xmlMessage struct {
	XMLName  xml.Name  `xml:"Message"`
	Role     Role      `xml:"role,attr"`
	Elements []element `xml:",any"`
}

type xmlConversation struct {
	XMLName  xml.Name     `xml:"Conversation"`
	Messages []xmlMessage `xml:"Message"`
}

// PromptText renders the conversation as indented XML. The output depends
// only on message roles and items, so rendering the same history twice
// yields identical bytes.
func (c *Conversation) PromptText() string {
	doc := xmlConversation{Messages: make([]xmlMessage, 0, len(c.messages))}
	for _, m := range c.messages {
		doc.Messages = append(doc.Messages, m.xmlMessage())
	}
	return marshalIndent(doc)
}

// PromptText renders a single message the same way Conversation does.
func (m Message) PromptText() string {
	return marshalIndent(m.xmlMessage())
}

// ItemText renders a single item.
func ItemText(it Item) string {
	return marshalIndent(it.element())
}

func (m Message) xmlMessage() xmlMessage {
	xm := xmlMessage{Role: m.Role, Elements: make([]element, 0, len(m.Items))}
	for _, it := range m.Items {
		xm.Elements = append(xm.Elements, it.element())
	}
	return xm
}

func marshalIndent(v any) string {
	var sb strings.Builder
	enc := xml.NewEncoder(&sb)
	enc.Indent("", "    ")
	if err := enc.Encode(v); err != nil {
		// Only strings and fixed element names are encoded.
		return ""
	}
	return sb.String()
}

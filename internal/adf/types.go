// Package adf converts between plain text with a small inline-markup
// dialect and the Atlassian Document Format tree used for issue
// descriptions and comments.
package adf

// Node represents a node in the Atlassian Document Format.
type Node struct {
	Type    string         `json:"type"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark represents an inline formatting mark in ADF.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node types used by the converter.
const (
	TypeDoc         = "doc"
	TypeParagraph   = "paragraph"
	TypeBulletList  = "bulletList"
	TypeOrderedList = "orderedList"
	TypeListItem    = "listItem"
	TypeText        = "text"
	TypeHardBreak   = "hardBreak"
)

// Mark types used by the converter.
const (
	MarkStrong = "strong"
	MarkEm     = "em"
	MarkCode   = "code"
)

// NewDocument returns an empty ADF document root.
func NewDocument() *Node {
	return &Node{
		Type:    TypeDoc,
		Attrs:   map[string]any{"version": 1},
		Content: []Node{},
	}
}

package jira

// Document is an Atlassian Document Format node tree. The v3 REST API only
// accepts rich-text fields such as description in this shape.
type Document struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Content []Node `json:"content"`
}

type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []Node `json:"content,omitempty"`
}

// TextDocument wraps text in a doc holding a single paragraph with a single
// text node.
func TextDocument(text string) Document {
	return Document{
		Type:    "doc",
		Version: 1,
		Content: []Node{{
			Type:    "paragraph",
			Content: []Node{{Type: "text", Text: text}},
		}},
	}
}

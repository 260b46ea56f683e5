package adf

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	bulletRe  = regexp.MustCompile(`^[-*]\s+`)
	orderedRe = regexp.MustCompile(`^\d+\.\s+`)
)

// TextToDocument converts plain text into an ADF document. Blank lines
// separate paragraphs; a paragraph whose every non-empty line starts with a
// bullet or numbered-list prefix becomes a list node. Inline runs of
// **strong**, _em_ and `code` become marked text nodes; unterminated
// delimiters degrade to literal text. There are no error conditions.
func TextToDocument(text string) *Node {
	doc := NewDocument()

	for _, block := range splitBlocks(text) {
		switch {
		case allMatch(block, bulletRe):
			doc.Content = append(doc.Content, buildList(block, TypeBulletList, bulletRe))
		case allMatch(block, orderedRe):
			doc.Content = append(doc.Content, buildList(block, TypeOrderedList, orderedRe))
		default:
			doc.Content = append(doc.Content, buildParagraph(block))
		}
	}

	return doc
}

// DocumentToText flattens an ADF document back to plain text. Marks are
// dropped: the round trip preserves textual content, not formatting.
func DocumentToText(doc *Node) string {
	if doc == nil {
		return ""
	}

	var b strings.Builder
	for _, block := range doc.Content {
		switch block.Type {
		case TypeParagraph:
			writeInline(&b, block.Content)
			b.WriteString("\n")
		case TypeBulletList:
			for _, item := range block.Content {
				b.WriteString("- ")
				writeListItem(&b, item)
			}
		case TypeOrderedList:
			for n, item := range block.Content {
				fmt.Fprintf(&b, "%d. ", n+1)
				writeListItem(&b, item)
			}
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// splitBlocks groups consecutive non-blank lines into paragraph blocks.
func splitBlocks(text string) [][]string {
	var blocks [][]string
	var current []string

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}

	return blocks
}

// allMatch reports whether every line in the block carries the prefix.
func allMatch(block []string, re *regexp.Regexp) bool {
	for _, line := range block {
		if !re.MatchString(strings.TrimSpace(line)) {
			return false
		}
	}
	return true
}

// buildList emits one listItem per line with the prefix stripped.
func buildList(block []string, listType string, re *regexp.Regexp) Node {
	list := Node{Type: listType}
	for _, line := range block {
		trimmed := strings.TrimSpace(line)
		text := re.ReplaceAllString(trimmed, "")
		list.Content = append(list.Content, Node{
			Type: TypeListItem,
			Content: []Node{{
				Type:    TypeParagraph,
				Content: parseInline(text),
			}},
		})
	}
	return list
}

// buildParagraph joins the block's lines with hardBreak nodes.
func buildParagraph(block []string) Node {
	para := Node{Type: TypeParagraph}
	for n, line := range block {
		if n > 0 {
			para.Content = append(para.Content, Node{Type: TypeHardBreak})
		}
		para.Content = append(para.Content, parseInline(line)...)
	}
	return para
}

// inlinePatterns are scanned earliest-match-first; plain text runs fill the
// gaps between matches.
var inlinePatterns = []struct {
	re   *regexp.Regexp
	mark string
}{
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), MarkStrong},
	{regexp.MustCompile("`([^`]+)`"), MarkCode},
	{regexp.MustCompile(`_([^_]+)_`), MarkEm},
}

// parseInline scans a single line left-to-right for inline marks, falling
// back to plain text runs between matches.
func parseInline(text string) []Node {
	if text == "" {
		return []Node{{Type: TypeText, Text: ""}}
	}

	var nodes []Node
	remaining := text

	for remaining != "" {
		earliest := len(remaining)
		earliestPattern := -1
		var earliestLoc []int

		for pi, p := range inlinePatterns {
			loc := p.re.FindStringSubmatchIndex(remaining)
			if loc != nil && loc[0] < earliest {
				earliest = loc[0]
				earliestPattern = pi
				earliestLoc = loc
			}
		}

		if earliestPattern < 0 {
			nodes = append(nodes, Node{Type: TypeText, Text: remaining})
			break
		}

		if earliest > 0 {
			nodes = append(nodes, Node{Type: TypeText, Text: remaining[:earliest]})
		}

		nodes = append(nodes, Node{
			Type:  TypeText,
			Text:  remaining[earliestLoc[2]:earliestLoc[3]],
			Marks: []Mark{{Type: inlinePatterns[earliestPattern].mark}},
		})

		remaining = remaining[earliestLoc[1]:]
	}

	return nodes
}

// writeInline renders inline nodes, mapping hardBreak to a newline.
func writeInline(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Type {
		case TypeText:
			b.WriteString(n.Text)
		case TypeHardBreak:
			b.WriteString("\n")
		default:
			// Unknown inline nodes from remote documents still carry
			// nested text worth surfacing.
			writeInline(b, n.Content)
		}
	}
}

// writeListItem renders one listItem's paragraphs as a single line each.
func writeListItem(b *strings.Builder, item Node) {
	for _, child := range item.Content {
		if child.Type == TypeParagraph {
			writeInline(b, child.Content)
		}
	}
	b.WriteString("\n")
}

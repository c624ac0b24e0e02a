// Package parser turns markup-bearing note content into plain text for
// embedding and result snippets.
package parser

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultSnippetRunes is the snippet length used in similarity results.
const DefaultSnippetRunes = 200

// blockTags start a new run of text; a separator is emitted at their edges so
// adjacent paragraphs do not fuse into one word.
var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Table: true, atom.Hr: true, atom.Section: true, atom.Article: true,
}

// PlainText strips markup tags from content and trims surrounding whitespace.
// Runs of whitespace collapse to a single space. Text the tokenizer cannot
// interpret as markup passes through literally.
func PlainText(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// A tag left open at EOF is literal text, not markup.
			if z.Err() == io.EOF && skipDepth == 0 {
				b.Write(z.Raw())
			}
			return collapse(b.String())

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if blockTags[a] {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skipDepth > 0 {
				skipDepth--
				continue
			}
			if blockTags[a] {
				b.WriteByte('\n')
			}
		}
	}
}

// EmbeddingText is the canonical text passed to the embedding provider:
// the title and the extracted body separated by a blank line.
func EmbeddingText(title, content string) string {
	return title + "\n\n" + PlainText(content)
}

// Snippet returns at most maxRunes runes of the plain text of content,
// with an ellipsis when truncated.
func Snippet(content string, maxRunes int) string {
	text := PlainText(content)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

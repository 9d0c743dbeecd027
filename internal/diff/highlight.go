package diff

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// highlightStyle is the chroma style the review console draws with.
const highlightStyle = "dracula"

// HighlightedLine is one document line split into coloured tokens.
type HighlightedLine struct {
	Tokens []Token
}

// Token is a syntax-highlighted chunk of text.
type Token struct {
	Text  string
	Color string // empty for the default colour
}

// Plain returns the line's text without colour.
func (hl HighlightedLine) Plain() string {
	var b strings.Builder
	for _, t := range hl.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Highlighted holds both sides of a proposal, coloured line by line.
type Highlighted struct {
	Before []HighlightedLine
	After  []HighlightedLine
}

// HighlightProposal colours the original and proposed text of target. Each
// side is lexed whole so multi-line strings and comments keep their colour.
// The lexer is chosen from the target's name, since staging names are
// random, and from the proposed content when the name says nothing.
func HighlightProposal(target, original, proposed string) *Highlighted {
	lexer := lexerFor(target, proposed)
	style := styles.Get(highlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighted{
		Before: highlightText(lexer, style, original),
		After:  highlightText(lexer, style, proposed),
	}
}

// Line returns the tokens for one diff line. Deleted lines come from the
// original, all others from the proposal. Line numbers are 1-based; nil is
// returned when the number is out of range.
func (h *Highlighted) Line(op gitdiff.LineOp, oldNum, newNum int) []Token {
	if h == nil {
		return nil
	}
	side, n := h.After, newNum
	if op == gitdiff.OpDelete {
		side, n = h.Before, oldNum
	}
	if n < 1 || n > len(side) {
		return nil
	}
	return side[n-1].Tokens
}

func highlightText(lexer chroma.Lexer, style *chroma.Style, text string) []HighlightedLine {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	if lexer == nil {
		return plainLines(text)
	}
	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return plainLines(text)
	}

	var result []HighlightedLine
	current := HighlightedLine{}
	for _, token := range iterator.Tokens() {
		parts := strings.Split(token.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				result = append(result, current)
				current = HighlightedLine{}
			}
			part = strings.TrimSuffix(part, "\r")
			if part != "" {
				current.Tokens = append(current.Tokens, Token{Text: part, Color: tokenColor(style, token.Type)})
			}
		}
	}
	result = append(result, current)

	// Lexers that ensure a trailing newline add an empty last line.
	n := strings.Count(text, "\n") + 1
	for len(result) < n {
		result = append(result, HighlightedLine{})
	}
	return result[:n]
}

func plainLines(text string) []HighlightedLine {
	lines := strings.Split(text, "\n")
	result := make([]HighlightedLine, len(lines))
	for i, line := range lines {
		result[i] = HighlightedLine{Tokens: []Token{{Text: strings.TrimSuffix(line, "\r")}}}
	}
	return result
}

func lexerFor(target, content string) chroma.Lexer {
	name := filepath.Base(target)
	lexer := lexers.Match(name)
	if lexer == nil {
		if ext := filepath.Ext(name); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil && content != "" {
		lexer = lexers.Analyse(content)
	}
	if lexer != nil {
		lexer = chroma.Coalesce(lexer)
	}
	return lexer
}

func tokenColor(style *chroma.Style, tt chroma.TokenType) string {
	entry := style.Get(tt)
	if entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	return ""
}

package rcl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// tokenKind discriminates lexer token types.
type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOperator // comparison or arithmetic operator
	tokenLParen
	tokenRParen
	tokenAnd
	tokenOr
	tokenNot
	tokenTrue
	tokenFalse
)

// token is a single lexical unit with its source position.
type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lexer tokenizes an RCL expression string.
type lexer struct {
	src    string
	pos    int
	tokens []token
}

// lex tokenizes the full expression, returning a ParseError on the first
// malformed token.
func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.kind == tokenEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokenLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokenRParen, text: ")", pos: start}, nil
	case c == '"' || c == '\'':
		return l.lexString(c)
	case unicode.IsDigit(rune(c)):
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	default:
		return l.lexOperator()
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++ // consume opening quote

	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			c = l.src[l.pos]
		}
		sb.WriteByte(c)
		l.pos++
	}

	return token{}, &ParseError{
		Expression: l.src,
		Pos:        start,
		Message:    "unterminated string literal",
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(rune(l.src[l.pos])) || l.src[l.pos] == '.') {
		l.pos++
	}

	text := l.src[start:l.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &ParseError{
			Expression: l.src,
			Pos:        start,
			Message:    fmt.Sprintf("invalid number literal %q", text),
		}
	}
	return token{kind: tokenNumber, text: text, num: num, pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}

	text := l.src[start:l.pos]
	switch text {
	case "and":
		return token{kind: tokenAnd, text: text, pos: start}, nil
	case "or":
		return token{kind: tokenOr, text: text, pos: start}, nil
	case "not":
		return token{kind: tokenNot, text: text, pos: start}, nil
	case "true":
		return token{kind: tokenTrue, text: text, pos: start}, nil
	case "false":
		return token{kind: tokenFalse, text: text, pos: start}, nil
	}
	return token{kind: tokenIdent, text: text, pos: start}, nil
}

// operators holds recognized operator spellings, longest first so that
// ">=" is not lexed as ">" followed by "=".
var operators = []string{">=", "<=", "==", "!=", ">", "<", "+", "-", "*", "/"}

func (l *lexer) lexOperator() (token, error) {
	for _, op := range operators {
		if strings.HasPrefix(l.src[l.pos:], op) {
			start := l.pos
			l.pos += len(op)
			return token{kind: tokenOperator, text: op, pos: start}, nil
		}
	}
	return token{}, &ParseError{
		Expression: l.src,
		Pos:        l.pos,
		Message:    fmt.Sprintf("unexpected character %q", l.src[l.pos]),
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9') || c == '.'
}

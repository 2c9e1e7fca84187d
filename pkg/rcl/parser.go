package rcl

import (
	"fmt"
	"strings"
)

// Compile parses an expression string into an immutable Expr.
//
// The grammar, lowest precedence first:
//
//	expr    := and { "or" and }
//	and     := unary { "and" unary }
//	unary   := "not" unary | compare
//	compare := sum [ (">=" | "<=" | ">" | "<" | "==" | "!=") sum ]
//	sum     := term { ("+" | "-") term }
//	term    := primary { ("*" | "/") primary }
//	primary := "(" expr ")" | identifier | number | string | "true" | "false"
//
// Identifiers are dotted two-part paths into the evaluation context,
// e.g. "metrics.cvr_1h" or "segment.device".
func Compile(src string) (*Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{src: src, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, p.errorf(p.peek().pos, "unexpected trailing input %q", p.peek().text)
	}

	return &Expr{source: src, root: root}, nil
}

// MustCompile is Compile that panics on error, for expressions known
// valid at construction time (tests, built-in defaults).
func MustCompile(src string) *Expr {
	expr, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return expr
}

// parser is a recursive-descent parser over the lexed token stream.
type parser struct {
	src    string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &ParseError{
		Expression: p.src,
		Pos:        pos,
		Message:    fmt.Sprintf(format, args...),
	}
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokenNot {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseCompare()
}

// comparisonOps are the operators valid at comparison precedence.
var comparisonOps = map[string]bool{
	">=": true, "<=": true, ">": true, "<": true, "==": true, "!=": true,
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.kind == tokenOperator && comparisonOps[tok.text] {
		p.advance()
		right, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		// Comparisons do not chain: "a < b < c" is rejected.
		if next := p.peek(); next.kind == tokenOperator && comparisonOps[next.text] {
			return nil, p.errorf(next.pos, "chained comparisons are not allowed")
		}
		return &compareNode{op: tok.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &arithNode{op: tok.text, left: left, right: right}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()

	switch tok.kind {
	case tokenLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokenRParen {
			return nil, p.errorf(closing.pos, "expected closing parenthesis")
		}
		return inner, nil

	case tokenNumber:
		return &literalNode{val: numberValue(tok.num)}, nil

	case tokenString:
		return &literalNode{val: stringValue(tok.text)}, nil

	case tokenTrue:
		return &literalNode{val: boolValue(true)}, nil

	case tokenFalse:
		return &literalNode{val: boolValue(false)}, nil

	case tokenIdent:
		section, key, ok := strings.Cut(tok.text, ".")
		if !ok || key == "" || section == "" {
			return nil, p.errorf(tok.pos, "identifier %q must be a dotted path like \"metrics.cvr_1h\"", tok.text)
		}
		if strings.Contains(key, ".") {
			return nil, p.errorf(tok.pos, "identifier %q has too many path segments", tok.text)
		}
		return &identNode{section: section, key: key}, nil

	case tokenEOF:
		return nil, p.errorf(tok.pos, "unexpected end of expression")

	default:
		return nil, p.errorf(tok.pos, "unexpected token %q", tok.text)
	}
}

package asm

import (
	"fmt"
	"strconv"
)

// OperandKind classifies a parsed operand.
type OperandKind uint8

const (
	OperandInt OperandKind = iota
	OperandFloat
	OperandString
	OperandRegister
	OperandCursor
	OperandIdent // label reference or flag name
)

// Operand is one parsed instruction operand.
type Operand struct {
	Kind     OperandKind
	IntVal   int64
	FloatVal float64
	StrVal   string // string literals, label and flag names
}

// Statement is one parsed line: either a label definition or an instruction.
type Statement struct {
	Label    string // set for "name:" lines
	Opcode   string
	Operands []Operand
	Line     int
}

// Parser turns tokens into statements.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser over the given source.
func NewParser(source string) *Parser {
	return &Parser{tokens: NewLexer(source).Tokenize()}
}

// Parse returns the statements in source order.
func (p *Parser) Parse() ([]Statement, error) {
	var stmts []Statement
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenEOF:
			return stmts, nil
		case TokenNewline:
			p.pos++
		case TokenIdent:
			// "name:" defines a label, otherwise it is an opcode
			if p.peekAt(1).Type == TokenColon {
				stmts = append(stmts, Statement{Label: tok.Value, Line: tok.Line})
				p.pos += 2
				continue
			}
			stmt, err := p.parseInstruction()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		default:
			return nil, fmt.Errorf("line %d: unexpected %s %q", tok.Line, tok.Type, tok.Value)
		}
	}
}

func (p *Parser) parseInstruction() (Statement, error) {
	op := p.next()
	stmt := Statement{Opcode: op.Value, Line: op.Line}

	for {
		tok := p.peek()
		if tok.Type == TokenNewline || tok.Type == TokenEOF {
			if tok.Type == TokenNewline {
				p.pos++
			}
			return stmt, nil
		}
		operand, err := p.parseOperand()
		if err != nil {
			return Statement{}, err
		}
		stmt.Operands = append(stmt.Operands, operand)
		if p.peek().Type == TokenComma {
			p.pos++
		}
	}
}

func (p *Parser) parseOperand() (Operand, error) {
	tok := p.next()
	switch tok.Type {
	case TokenInt:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("line %d: bad integer %q: %w", tok.Line, tok.Value, err)
		}
		return Operand{Kind: OperandInt, IntVal: n}, nil
	case TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("line %d: bad float %q: %w", tok.Line, tok.Value, err)
		}
		return Operand{Kind: OperandFloat, FloatVal: f}, nil
	case TokenString:
		return Operand{Kind: OperandString, StrVal: tok.Value}, nil
	case TokenRegister:
		n, err := strconv.ParseInt(tok.Value, 10, 32)
		if err != nil {
			return Operand{}, fmt.Errorf("line %d: bad register r%s", tok.Line, tok.Value)
		}
		return Operand{Kind: OperandRegister, IntVal: n}, nil
	case TokenCursor:
		n, err := strconv.ParseInt(tok.Value, 10, 32)
		if err != nil {
			return Operand{}, fmt.Errorf("line %d: bad cursor c%s", tok.Line, tok.Value)
		}
		return Operand{Kind: OperandCursor, IntVal: n}, nil
	case TokenIdent:
		return Operand{Kind: OperandIdent, StrVal: tok.Value}, nil
	default:
		return Operand{}, fmt.Errorf("line %d: unexpected %s %q in operands", tok.Line, tok.Type, tok.Value)
	}
}

func (p *Parser) peek() Token { return p.peekAt(0) }

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return Token{Type: TokenEOF}
}

func (p *Parser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

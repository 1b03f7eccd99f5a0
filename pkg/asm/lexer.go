// Package asm assembles textual programs into executable form. The syntax
// is one instruction per line, "Opcode p1, p2, p3", with ; comments, rN
// register and cN cursor operands, quoted string literals, and named jump
// labels declared as "name:".
package asm

import (
	"strings"
	"unicode"
)

// TokenType classifies a lexical token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIdent  // opcode names, labels, flag names
	TokenInt    // integer literals
	TokenFloat  // float literals
	TokenString // "quoted strings"
	TokenComma
	TokenColon
	TokenRegister // r0, r1, ...
	TokenCursor   // c0, c1, ...
)

// String returns the token type's name.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenFloat:
		return "FLOAT"
	case TokenString:
		return "STRING"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenRegister:
		return "REGISTER"
	case TokenCursor:
		return "CURSOR"
	default:
		return "UNKNOWN"
	}
}

// Token is a lexical token with its source line.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes assembly source.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a lexer over the given source.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// Tokenize scans the whole input and returns the tokens, ending with EOF.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipBlank()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]
		switch {
		case ch == '\n':
			l.emit(TokenNewline, "\n")
			l.line++
			l.pos++

		case ch == ';':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}

		case ch == ',':
			l.emit(TokenComma, ",")
			l.pos++

		case ch == ':':
			l.emit(TokenColon, ":")
			l.pos++

		case ch == '"':
			l.scanString()

		case ch == '-' || unicode.IsDigit(rune(ch)):
			l.scanNumber()

		case unicode.IsLetter(rune(ch)) || ch == '_':
			l.scanWord()

		default:
			l.pos++ // skip stray characters
		}
	}
	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, v string) {
	l.tokens = append(l.tokens, Token{Type: t, Value: v, Line: l.line})
}

func (l *Lexer) skipBlank() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) scanString() {
	l.pos++ // opening quote
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '"' {
		if l.input[l.pos] == '\n' {
			l.line++
		}
		l.pos++
	}
	l.emit(TokenString, l.input[start:l.pos])
	if l.pos < len(l.input) {
		l.pos++ // closing quote
	}
}

func (l *Lexer) scanNumber() {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && unicode.IsDigit(rune(l.input[l.pos])) {
		l.pos++
	}
	isFloat := false
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		isFloat = true
		l.pos++
		for l.pos < len(l.input) && unicode.IsDigit(rune(l.input[l.pos])) {
			l.pos++
		}
	}
	if isFloat {
		l.emit(TokenFloat, l.input[start:l.pos])
	} else {
		l.emit(TokenInt, l.input[start:l.pos])
	}
}

func (l *Lexer) scanWord() {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) || ch == '_' {
			l.pos++
		} else {
			break
		}
	}
	word := l.input[start:l.pos]

	// rN and cN are register and cursor operands, anything else an ident
	if len(word) >= 2 && allDigits(word[1:]) {
		switch word[0] {
		case 'r', 'R':
			l.emit(TokenRegister, word[1:])
			return
		case 'c', 'C':
			l.emit(TokenCursor, word[1:])
			return
		}
	}
	l.emit(TokenIdent, word)
}

func allDigits(s string) bool {
	for _, ch := range s {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return strings.TrimSpace(s) != ""
}

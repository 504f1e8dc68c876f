// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package syntax

import (
	"regexp"
	"strings"
)

// TokenType identifies the lexical class of a Token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenInterfaceDef
	TokenTypeDef
	TokenMethodDef
	TokenErrorDef
	TokenTypeBool
	TokenTypeInt
	TokenTypeFloat
	TokenTypeString
	TokenLParen
	TokenRParen
	TokenColon
	TokenComma
	TokenArrow
	TokenArray
	TokenInterfaceName
	TokenMemberName
	TokenFieldName
)

func (typ TokenType) String() string {
	switch typ {
	case TokenEOF:
		return "end of input"
	case TokenInterfaceDef:
		return `"interface"`
	case TokenTypeDef:
		return `"type"`
	case TokenMethodDef:
		return `"method"`
	case TokenErrorDef:
		return `"error"`
	case TokenTypeBool, TokenTypeInt, TokenTypeFloat, TokenTypeString:
		return "a builtin type"
	case TokenLParen:
		return `"("`
	case TokenRParen:
		return `")"`
	case TokenColon:
		return `":"`
	case TokenComma:
		return `","`
	case TokenArrow:
		return `"->"`
	case TokenArray:
		return `"[]"`
	case TokenInterfaceName:
		return "an interface name"
	case TokenMemberName:
		return "a member name"
	case TokenFieldName:
		return "a field name"
	default:
		return "a token"
	}
}

// Token is one lexical unit produced by the Lexer.
type Token struct {
	Type   TokenType
	Text   string
	Offset int
}

var (
	reWhitespace    = regexp.MustCompile(`\A([ \t\r\n]|#[^\n]*)+`)
	reInterfaceName = regexp.MustCompile(`\A[a-z]+(\.[a-z0-9][a-z0-9-]*)+`)
	reMemberName    = regexp.MustCompile(`\A[A-Z][A-Za-z0-9_]*`)
	reFieldName     = regexp.MustCompile(`\A[A-Za-z0-9_]+`)
)

var keywords = map[string]TokenType{
	"interface": TokenInterfaceDef,
	"type":      TokenTypeDef,
	"method":    TokenMethodDef,
	"error":     TokenErrorDef,
	"bool":      TokenTypeBool,
	"int":       TokenTypeInt,
	"float":     TokenTypeFloat,
	"string":    TokenTypeString,
}

// Lexer scans a varlink interface description into Tokens.
//
// Unlike a stream-oriented scanner, the Lexer holds the whole source in
// memory and matches regular expressions anchored at its current position.
// This mirrors how the reference varlink scanner works, and keeps syntax
// error offsets simple to report.
type Lexer struct {
	src string
	pos int
}

// NewLexer creates a Lexer over the given source text.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// Offset returns the current byte offset of the lexer in the source.
func (l *Lexer) Offset() int {
	return l.pos
}

func (l *Lexer) skipSpace() {
	if m := reWhitespace.FindString(l.src[l.pos:]); m != "" {
		l.pos += len(m)
	}
}

// peekWord returns the longest run of identifier-shaped characters (letters,
// digits, '.', '-', '_') starting at the current position, without consuming
// it. It's used to decide whether the next token is a keyword, an
// interface-name, a member-name, or a field-name before committing to one of
// the context-specific regexps below.
func (l *Lexer) peekWord() string {
	rest := l.src[l.pos:]
	end := 0
	for end < len(rest) {
		c := rest[end]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			end++
		default:
			return rest[:end]
		}
	}
	return rest
}

// Next returns the next token, skipping whitespace and comments. kind selects
// the regular expression used to disambiguate a bare identifier: it has no
// effect on punctuation or keywords, which are always recognized.
func (l *Lexer) Next(kind TokenType) (Token, error) {
	l.skipSpace()
	offset := l.pos

	if l.pos >= len(l.src) {
		return Token{Type: TokenEOF, Offset: offset}, nil
	}

	switch l.src[l.pos] {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Text: "(", Offset: offset}, nil
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Text: ")", Offset: offset}, nil
	case ':':
		l.pos++
		return Token{Type: TokenColon, Text: ":", Offset: offset}, nil
	case ',':
		l.pos++
		return Token{Type: TokenComma, Text: ",", Offset: offset}, nil
	case '-':
		if strings.HasPrefix(l.src[l.pos:], "->") {
			l.pos += 2
			return Token{Type: TokenArrow, Text: "->", Offset: offset}, nil
		}
		return Token{}, &SyntaxError{Offset: offset, Expected: `"->"`, Found: l.peekWord()}
	case '[':
		if strings.HasPrefix(l.src[l.pos:], "[]") {
			l.pos += 2
			return Token{Type: TokenArray, Text: "[]", Offset: offset}, nil
		}
		return Token{}, &SyntaxError{Offset: offset, Expected: `"[]"`, Found: "["}
	}

	word := l.peekWord()
	if word == "" {
		return Token{}, &SyntaxError{Offset: offset, Expected: "a token", Found: string(l.src[l.pos])}
	}

	if typ, ok := keywords[word]; ok && kind != TokenFieldName {
		l.pos += len(word)
		return Token{Type: typ, Text: word, Offset: offset}, nil
	}

	var re *regexp.Regexp
	switch kind {
	case TokenInterfaceName:
		re = reInterfaceName
	case TokenMemberName:
		re = reMemberName
	default:
		re = reFieldName
	}

	m := re.FindString(l.src[l.pos:])
	if m == "" {
		return Token{}, &SyntaxError{Offset: offset, Expected: kind.String(), Found: word}
	}
	l.pos += len(m)
	return Token{Type: kind, Text: m, Offset: offset}, nil
}

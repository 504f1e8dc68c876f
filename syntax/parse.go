// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package syntax

import "strings"

// Parser is a recursive-descent parser over the varlink interface
// definition language, with one token of lookahead.
type Parser struct {
	lexer *Lexer
	src   string

	pushed bool
	back   Token
}

// NewParser creates a Parser over the given interface description.
func NewParser(src string) *Parser {
	return &Parser{lexer: NewLexer(src), src: src}
}

// Parse reads one interface definition from the parser's source. It
// consumes the entire input; anything left over after the last member is a
// syntax error.
func Parse(src string) (intf InterfaceDef, err error) {
	defer func() {
		if r := recover(); r != nil {
			serr, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			err = serr
		}
	}()

	p := NewParser(src)
	return p.parseInterface(), nil
}

func (p *Parser) next(kind TokenType) Token {
	if p.pushed {
		p.pushed = false
		return p.back
	}
	tok, err := p.lexer.Next(kind)
	if err != nil {
		panic(err)
	}
	return tok
}

func (p *Parser) pushBack(tok Token) {
	if p.pushed {
		panic("programming error: only one token of lookahead is supported")
	}
	p.pushed = true
	p.back = tok
}

func (p *Parser) peek(kind TokenType) Token {
	tok := p.next(kind)
	p.pushBack(tok)
	return tok
}

func (p *Parser) expect(kind TokenType, want TokenType) Token {
	tok := p.next(kind)
	if tok.Type != want {
		panic(&SyntaxError{Offset: tok.Offset, Expected: want.String(), Found: tok.Text})
	}
	return tok
}

func (p *Parser) parseInterface() InterfaceDef {
	p.expect(TokenMemberName, TokenInterfaceDef)
	name := p.expect(TokenInterfaceName, TokenInterfaceName)

	intf := InterfaceDef{Name: name.Text, Source: p.src}

	for {
		tok := p.peek(TokenMemberName)
		switch tok.Type {
		case TokenTypeDef:
			intf.Members = append(intf.Members, p.parseAlias())
		case TokenMethodDef:
			intf.Members = append(intf.Members, p.parseMethod())
		case TokenErrorDef:
			intf.Members = append(intf.Members, p.parseError())
		case TokenEOF:
			return intf
		default:
			panic(&SyntaxError{Offset: tok.Offset, Expected: `"type", "method", or "error"`, Found: tok.Text})
		}
	}
}

func (p *Parser) parseAlias() AliasDef {
	p.expect(TokenMemberName, TokenTypeDef)
	name := p.expect(TokenMemberName, TokenMemberName)
	return AliasDef{Name: name.Text, Type: p.parseType()}
}

func (p *Parser) parseError() ErrorDef {
	p.expect(TokenMemberName, TokenErrorDef)
	name := p.expect(TokenMemberName, TokenMemberName)
	return ErrorDef{Name: name.Text, Type: p.parseType()}
}

func (p *Parser) parseMethod() MethodDef {
	p.expect(TokenMemberName, TokenMethodDef)
	name := p.expect(TokenMemberName, TokenMemberName)

	sigStart := p.peek(TokenFieldName).Offset

	in := p.parseStruct()
	p.expect(TokenFieldName, TokenArrow)
	out := p.parseStruct()

	sigEnd := p.lexer.Offset()
	return MethodDef{
		Name:      name.Text,
		In:        in,
		Out:       out,
		Signature: strings.TrimSpace(p.src[sigStart:sigEnd]),
	}
}

// parseType parses a "type" production: a primitive, a member-name
// reference, or a struct, optionally suffixed with "[]".
func (p *Parser) parseType() Type {
	tok := p.next(TokenMemberName)

	var base Type
	switch tok.Type {
	case TokenTypeBool:
		base = PrimitiveBool
	case TokenTypeInt:
		base = PrimitiveInt
	case TokenTypeFloat:
		base = PrimitiveFloat
	case TokenTypeString:
		base = PrimitiveString
	case TokenMemberName:
		base = NamedType{Name: tok.Text}
	case TokenLParen:
		p.pushBack(tok)
		base = p.parseStruct()
	default:
		panic(&SyntaxError{Offset: tok.Offset, Expected: "a type", Found: tok.Text})
	}

	if p.peek(TokenMemberName).Type == TokenArray {
		p.next(TokenMemberName)
		return ArrayType{Elem: base}
	}
	return base
}

// parseStruct parses a "struct" production: "(" followed by zero or more
// comma-separated fields and a closing ")". Trailing commas are rejected.
func (p *Parser) parseStruct() StructType {
	p.expect(TokenFieldName, TokenLParen)

	var s StructType
	if p.peek(TokenFieldName).Type == TokenRParen {
		p.next(TokenFieldName)
		return s
	}

	for {
		name := p.expect(TokenFieldName, TokenFieldName)
		p.expect(TokenFieldName, TokenColon)
		typ := p.parseType()
		s.Fields = append(s.Fields, StructField{Name: name.Text, Type: typ})

		tok := p.next(TokenFieldName)
		switch tok.Type {
		case TokenComma:
			continue
		case TokenRParen:
			return s
		default:
			panic(&SyntaxError{Offset: tok.Offset, Expected: `"," or ")"`, Found: tok.Text})
		}
	}
}

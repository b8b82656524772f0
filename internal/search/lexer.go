// Package search implements document search over one collection: a small
// SQL-like expression language, structured filters, a planner that narrows
// candidates through the per-key index tables, and an in-memory evaluator
// that confirms matches against flattened projections.
//
// The expression language supports:
//   - Field comparisons: year >= 1965, title = 'Dune'
//   - String operators: title CONTAINS 'Du', name STARTSWITH 'report'
//   - Membership: genre IN ('scifi', 'fantasy')
//   - Null checks: subtitle IS NULL, author.name IS NOT NULL
//   - Boolean operators AND, OR, NOT and parentheses
//
// Field names are dot-joined flattened paths and are case-sensitive;
// keywords are not.
package search

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType identifies a lexer token.
type TokenType int

const (
	TokenEOF        TokenType = iota
	TokenIdent                // field names, bare values
	TokenString               // quoted strings
	TokenNumber               // numeric values
	TokenEquals               // =
	TokenNotEquals            // !=
	TokenLess                 // <
	TokenLessEq               // <=
	TokenGreater              // >
	TokenGreaterEq            // >=
	TokenAnd                  // AND
	TokenOr                   // OR
	TokenNot                  // NOT
	TokenIn                   // IN
	TokenContains             // CONTAINS
	TokenStartsWith           // STARTSWITH
	TokenEndsWith             // ENDSWITH
	TokenIs                   // IS
	TokenNull                 // NULL
	TokenLParen               // (
	TokenRParen               // )
	TokenComma                // ,
)

// String returns the display name of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIdent:
		return "IDENT"
	case TokenString:
		return "STRING"
	case TokenNumber:
		return "NUMBER"
	case TokenEquals:
		return "="
	case TokenNotEquals:
		return "!="
	case TokenLess:
		return "<"
	case TokenLessEq:
		return "<="
	case TokenGreater:
		return ">"
	case TokenGreaterEq:
		return ">="
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenIn:
		return "IN"
	case TokenContains:
		return "CONTAINS"
	case TokenStartsWith:
		return "STARTSWITH"
	case TokenEndsWith:
		return "ENDSWITH"
	case TokenIs:
		return "IS"
	case TokenNull:
		return "NULL"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Token is a single token with its position in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes an expression string.
type Lexer struct {
	input string
	pos   int
	width int
}

// NewLexer creates a Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return 0
	}
	r := rune(l.input[l.pos])
	l.width = 1
	l.pos += l.width
	return r
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return rune(l.input[l.pos])
}

func (l *Lexer) backup() {
	l.pos -= l.width
}

func (l *Lexer) skipWhitespace() {
	for {
		r := l.next()
		if r == 0 || !unicode.IsSpace(r) {
			l.backup()
			return
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	startPos := l.pos
	r := l.next()

	if r == 0 {
		return Token{Type: TokenEOF, Pos: startPos}, nil
	}

	switch r {
	case '(':
		return Token{Type: TokenLParen, Value: "(", Pos: startPos}, nil
	case ')':
		return Token{Type: TokenRParen, Value: ")", Pos: startPos}, nil
	case ',':
		return Token{Type: TokenComma, Value: ",", Pos: startPos}, nil
	case '=':
		return Token{Type: TokenEquals, Value: "=", Pos: startPos}, nil
	case '!':
		if l.peek() == '=' {
			l.next()
			return Token{Type: TokenNotEquals, Value: "!=", Pos: startPos}, nil
		}
		return Token{}, fmt.Errorf("unexpected character '!' at position %d (did you mean '!=' or 'NOT'?)", startPos)
	case '<':
		if l.peek() == '=' {
			l.next()
			return Token{Type: TokenLessEq, Value: "<=", Pos: startPos}, nil
		}
		if l.peek() == '>' {
			l.next()
			return Token{Type: TokenNotEquals, Value: "<>", Pos: startPos}, nil
		}
		return Token{Type: TokenLess, Value: "<", Pos: startPos}, nil
	case '>':
		if l.peek() == '=' {
			l.next()
			return Token{Type: TokenGreaterEq, Value: ">=", Pos: startPos}, nil
		}
		return Token{Type: TokenGreater, Value: ">", Pos: startPos}, nil
	case '"', '\'':
		return l.readString(r, startPos)
	default:
		if unicode.IsDigit(r) || r == '-' || r == '+' {
			l.backup()
			return l.readNumber(startPos)
		}
		if isIdentStart(r) {
			l.backup()
			return l.readIdent(startPos)
		}
		return Token{}, fmt.Errorf("unexpected character %q at position %d", r, startPos)
	}
}

// readString reads a quoted string with backslash escapes.
func (l *Lexer) readString(quote rune, startPos int) (Token, error) {
	var sb strings.Builder
	for {
		r := l.next()
		if r == 0 {
			return Token{}, fmt.Errorf("unterminated string starting at position %d", startPos)
		}
		if r == quote {
			return Token{Type: TokenString, Value: sb.String(), Pos: startPos}, nil
		}
		if r == '\\' {
			escaped := l.next()
			switch escaped {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\':
				sb.WriteRune('\\')
			case '"':
				sb.WriteRune('"')
			case '\'':
				sb.WriteRune('\'')
			case 0:
				return Token{}, fmt.Errorf("unterminated escape sequence at position %d", l.pos-1)
			default:
				sb.WriteRune(escaped)
			}
		} else {
			sb.WriteRune(r)
		}
	}
}

// readNumber reads an optionally signed integer or decimal number.
func (l *Lexer) readNumber(startPos int) (Token, error) {
	var sb strings.Builder

	r := l.next()
	if r == '-' || r == '+' {
		sb.WriteRune(r)
		r = l.next()
	}
	if !unicode.IsDigit(r) {
		l.backup()
		return Token{}, fmt.Errorf("expected digit at position %d", l.pos)
	}
	sb.WriteRune(r)

	seenDot := false
	for {
		r = l.next()
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
			continue
		}
		if r == '.' && !seenDot && unicode.IsDigit(l.peek()) {
			seenDot = true
			sb.WriteRune(r)
			continue
		}
		break
	}
	if r != 0 {
		l.backup()
	}
	return Token{Type: TokenNumber, Value: sb.String(), Pos: startPos}, nil
}

// readIdent reads an identifier or keyword. Keywords are matched
// case-insensitively; identifiers keep their case.
func (l *Lexer) readIdent(startPos int) (Token, error) {
	var sb strings.Builder
	for {
		r := l.next()
		if r == 0 || !isIdentChar(r) {
			l.backup()
			break
		}
		sb.WriteRune(r)
	}

	value := sb.String()
	switch strings.ToUpper(value) {
	case "AND":
		return Token{Type: TokenAnd, Value: value, Pos: startPos}, nil
	case "OR":
		return Token{Type: TokenOr, Value: value, Pos: startPos}, nil
	case "NOT":
		return Token{Type: TokenNot, Value: value, Pos: startPos}, nil
	case "IN":
		return Token{Type: TokenIn, Value: value, Pos: startPos}, nil
	case "CONTAINS":
		return Token{Type: TokenContains, Value: value, Pos: startPos}, nil
	case "STARTSWITH":
		return Token{Type: TokenStartsWith, Value: value, Pos: startPos}, nil
	case "ENDSWITH":
		return Token{Type: TokenEndsWith, Value: value, Pos: startPos}, nil
	case "IS":
		return Token{Type: TokenIs, Value: value, Pos: startPos}, nil
	case "NULL":
		return Token{Type: TokenNull, Value: value, Pos: startPos}, nil
	default:
		return Token{Type: TokenIdent, Value: value, Pos: startPos}, nil
	}
}

// isIdentStart reports whether r can start an identifier.
func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

// isIdentChar reports whether r can appear inside an identifier. Dots join
// flattened path segments.
func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

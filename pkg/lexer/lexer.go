// Package lexer turns C source text into a stream of positioned tokens.
package lexer

import "strings"

// Lexer tokenizes C source code
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // next reading position
	ch      byte // current character
	line    int
	column  int
}

// New creates a new Lexer for the given input
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.pos < len(l.input) && l.readPos > 0 && l.input[l.pos] == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if open, ok := l.skipComments(); !ok {
		return open
	}
	l.skipWhitespace()

	tok := Token{Pos: l.pos, Line: l.line, Column: l.column}

	if l.atEOF() {
		tok.Type = TokenEOF
		tok.Pos = len(l.input)
		return tok
	}

	switch l.ch {
	case '+':
		switch l.peekChar() {
		case '+':
			tok = l.twoCharToken(TokenIncrement)
		case '=':
			tok = l.twoCharToken(TokenPlusAssign)
		default:
			tok = l.newToken(TokenPlus, l.ch)
		}
	case '-':
		switch l.peekChar() {
		case '>':
			tok = l.twoCharToken(TokenArrow)
		case '-':
			tok = l.twoCharToken(TokenDecrement)
		case '=':
			tok = l.twoCharToken(TokenMinusAssign)
		default:
			tok = l.newToken(TokenMinus, l.ch)
		}
	case '*':
		tok = l.newToken(TokenStar, l.ch)
	case '/':
		tok = l.newToken(TokenSlash, l.ch)
	case '%':
		tok = l.newToken(TokenPercent, l.ch)
	case '=':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenEq)
		} else {
			tok = l.newToken(TokenAssign, l.ch)
		}
	case '!':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenNe)
		} else {
			tok = l.newToken(TokenNot, l.ch)
		}
	case '<':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenLe)
		} else {
			tok = l.newToken(TokenLt, l.ch)
		}
	case '>':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(TokenGe)
		} else {
			tok = l.newToken(TokenGt, l.ch)
		}
	case '&':
		if l.peekChar() == '&' {
			tok = l.twoCharToken(TokenAnd)
		} else {
			tok = l.newToken(TokenAmpersand, l.ch)
		}
	case '|':
		if l.peekChar() == '|' {
			tok = l.twoCharToken(TokenOr)
		} else {
			tok = l.newToken(TokenIllegal, l.ch)
		}
	case '(':
		tok = l.newToken(TokenLParen, l.ch)
	case ')':
		tok = l.newToken(TokenRParen, l.ch)
	case '{':
		tok = l.newToken(TokenLBrace, l.ch)
	case '}':
		tok = l.newToken(TokenRBrace, l.ch)
	case '[':
		tok = l.newToken(TokenLBracket, l.ch)
	case ']':
		tok = l.newToken(TokenRBracket, l.ch)
	case ';':
		tok = l.newToken(TokenSemicolon, l.ch)
	case ',':
		tok = l.newToken(TokenComma, l.ch)
	case '.':
		tok = l.newToken(TokenDot, l.ch)
	case '"':
		s, ok := l.readQuoted('"')
		tok.Literal = s
		tok.Type = TokenString
		if !ok {
			tok.Type = TokenIllegal
		}
		return tok
	case '\'':
		s, ok := l.readQuoted('\'')
		tok.Literal = s
		tok.Type = TokenCharLit
		if !ok || len(s) != 1 {
			tok.Type = TokenIllegal
		}
		return tok
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = LookupIdent(tok.Literal)
			return tok
		} else if isDigit(l.ch) {
			tok.Type = TokenInt
			tok.Literal = l.readNumber()
			return tok
		} else {
			tok = l.newToken(TokenIllegal, l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) newToken(tokenType TokenType, ch byte) Token {
	return Token{Type: tokenType, Literal: string(ch), Pos: l.pos, Line: l.line, Column: l.column}
}

// twoCharToken consumes the first character of a two-character operator;
// NextToken consumes the second.
func (l *Lexer) twoCharToken(tokenType TokenType) Token {
	tok := Token{Type: tokenType, Literal: l.input[l.pos : l.pos+2], Pos: l.pos, Line: l.line, Column: l.column}
	l.readChar()
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComments skips comments and the whitespace after them. For a block
// comment that runs to the end of input it returns an illegal token at the
// opening "/*" and false.
func (l *Lexer) skipComments() (Token, bool) {
	for l.ch == '/' {
		if l.peekChar() == '/' {
			// Single-line comment
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			l.skipWhitespace()
		} else if l.peekChar() == '*' {
			// Multi-line comment
			open := Token{Type: TokenIllegal, Literal: "/*", Pos: l.pos, Line: l.line, Column: l.column}
			l.readChar() // consume /
			l.readChar() // consume *
			for {
				if l.atEOF() {
					return open, false
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // consume *
					l.readChar() // consume /
					break
				}
				l.readChar()
			}
			l.skipWhitespace()
		} else {
			break
		}
	}
	return Token{}, true
}

func (l *Lexer) readIdentifier() string {
	pos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

func (l *Lexer) readNumber() string {
	pos := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

// readQuoted reads a quoted literal and decodes its escapes. It reports
// false for an unterminated literal or an unknown escape.
func (l *Lexer) readQuoted(quote byte) (string, bool) {
	l.readChar() // consume opening quote
	var sb strings.Builder
	for l.ch != quote {
		if l.atEOF() || l.ch == '\n' {
			return sb.String(), false
		}
		if l.ch == '\\' {
			l.readChar()
			c, ok := unescape(l.ch)
			if !ok {
				return sb.String(), false
			}
			sb.WriteByte(c)
		} else {
			sb.WriteByte(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing quote
	return sb.String(), true
}

func unescape(ch byte) (byte, bool) {
	switch ch {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\', '\'', '"':
		return ch, true
	}
	return 0, false
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

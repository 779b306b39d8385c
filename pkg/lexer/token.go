package lexer

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent   // main, foo, x
	TokenInt     // 42
	TokenCharLit // 'a'
	TokenString  // "hello"

	// Keywords
	TokenInt_    // int
	TokenChar    // char
	TokenVoid    // void
	TokenStruct  // struct
	TokenReturn  // return
	TokenIf      // if
	TokenElse    // else
	TokenWhile   // while
	TokenFor     // for
	TokenSizeof  // sizeof
	TokenAlignof // _Alignof
	TokenThrow   // __throw

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenPercent   // %
	TokenAssign    // =
	TokenEq        // ==
	TokenNe        // !=
	TokenLt        // <
	TokenLe        // <=
	TokenGt        // >
	TokenGe        // >=
	TokenAnd       // &&
	TokenOr        // ||
	TokenNot       // !
	TokenAmpersand // &

	// Compound assignment operators
	TokenPlusAssign  // +=
	TokenMinusAssign // -=

	// Increment/decrement
	TokenIncrement // ++
	TokenDecrement // --

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenSemicolon // ;
	TokenComma     // ,
	TokenDot       // .
	TokenArrow     // ->
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenIllegal:     "ILLEGAL",
	TokenIdent:       "IDENT",
	TokenInt:         "INT",
	TokenCharLit:     "CHAR",
	TokenString:      "STRING",
	TokenInt_:        "int",
	TokenChar:        "char",
	TokenVoid:        "void",
	TokenStruct:      "struct",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenFor:         "for",
	TokenSizeof:      "sizeof",
	TokenAlignof:     "_Alignof",
	TokenThrow:       "__throw",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenAssign:      "=",
	TokenEq:          "==",
	TokenNe:          "!=",
	TokenLt:          "<",
	TokenLe:          "<=",
	TokenGt:          ">",
	TokenGe:          ">=",
	TokenAnd:         "&&",
	TokenOr:          "||",
	TokenNot:         "!",
	TokenAmpersand:   "&",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenIncrement:   "++",
	TokenDecrement:   "--",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenSemicolon:   ";",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenArrow:       "->",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a lexical token. For character and string literals
// Literal holds the decoded bytes, escapes already resolved.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset of the first character
	Line    int
	Column  int
}

// keywords maps keyword strings to token types
var keywords = map[string]TokenType{
	"int":      TokenInt_,
	"char":     TokenChar,
	"void":     TokenVoid,
	"struct":   TokenStruct,
	"return":   TokenReturn,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"sizeof":   TokenSizeof,
	"_Alignof": TokenAlignof,
	"__throw":  TokenThrow,
}

// LookupIdent returns the token type for an identifier (keyword or IDENT)
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}

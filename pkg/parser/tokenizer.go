// Package parser turns operator input into parsed commands and
// completion suggestions. Both entry points share one grammar walk over
// the command tree, so a suggestion offered at completion time always
// parses when typed verbatim.
package parser

// Token is one whitespace-delimited word of an input line, with its
// byte offsets for error reporting.
type Token struct {
	Text   string
	Start  int
	End    int
	Quoted bool
}

// Tokenize splits an input line on whitespace. A double-quoted section
// forms a single token with the quotes stripped, so quoted string
// values may span words.
func Tokenize(input string) []Token {
	var tokens []Token
	i := 0
	for i < len(input) {
		for i < len(input) && (input[i] == ' ' || input[i] == '\t') {
			i++
		}
		if i >= len(input) {
			break
		}
		start := i
		quoted := false
		var text []byte
		for i < len(input) {
			c := input[i]
			if c == '"' {
				quoted = true
				i++
				for i < len(input) && input[i] != '"' {
					text = append(text, input[i])
					i++
				}
				if i < len(input) {
					i++ // closing quote
				}
				continue
			}
			if c == ' ' || c == '\t' {
				break
			}
			text = append(text, c)
			i++
		}
		tokens = append(tokens, Token{Text: string(text), Start: start, End: i, Quoted: quoted})
	}
	return tokens
}

// EndsInSpace reports whether the text up to cursor terminates a token,
// meaning completion should offer the next position's candidates.
func EndsInSpace(text string) bool {
	if text == "" {
		return true
	}
	c := text[len(text)-1]
	return c == ' ' || c == '\t'
}

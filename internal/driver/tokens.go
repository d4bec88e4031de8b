package driver

// Token is one @Name placeholder occurrence in a SQL string.
type Token struct {
	// Name is the placeholder name without the leading '@'
	Name string

	// Start and End are the byte offsets of "@Name" in the query
	Start, End int
}

// ScanTokens returns the @Name placeholders in query in order of appearance.
// Quoted literals, quoted identifiers, comments and @@system variables are
// skipped.
func ScanTokens(query string) []Token {
	var tokens []Token
	walkSQL(query, func(i int) int {
		n := len(query)
		if query[i] != '@' {
			return i
		}
		if i+1 < n && query[i+1] == '@' {
			// @@ROWCOUNT and friends
			i++
			for i+1 < n && isIdentChar(query[i+1]) {
				i++
			}
			return i
		}
		if i+1 >= n || !isIdentStart(query[i+1]) {
			return i
		}
		j := i + 2
		for j < n && isIdentChar(query[j]) {
			j++
		}
		tokens = append(tokens, Token{Name: query[i+1 : j], Start: i, End: j})
		return j - 1
	})
	return tokens
}

// ScanPositional returns the byte offsets of bare "?" placeholders outside
// quotes and comments.
func ScanPositional(query string) []int {
	var offsets []int
	walkSQL(query, func(i int) int {
		if query[i] == '?' {
			offsets = append(offsets, i)
		}
		return i
	})
	return offsets
}

// TokenNames returns the distinct placeholder names in order of first use.
func TokenNames(query string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, tok := range ScanTokens(query) {
		if !seen[tok.Name] {
			seen[tok.Name] = true
			names = append(names, tok.Name)
		}
	}
	return names
}

// walkSQL calls visit for every byte of query that is outside a quoted span
// or comment. visit returns the last index it consumed.
func walkSQL(query string, visit func(i int) int) {
	n := len(query)
	for i := 0; i < n; i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(query, i, c)
		case c == '[':
			i = skipQuoted(query, i, ']')
		case c == '-' && i+1 < n && query[i+1] == '-':
			for i < n && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && query[i+1] == '*':
			i += 2
			for i+1 < n && !(query[i] == '*' && query[i+1] == '/') {
				i++
			}
			i++
		default:
			i = visit(i)
		}
	}
}

// skipQuoted returns the index of the closing quote for the literal opened at
// start. A doubled closing quote is an escape.
func skipQuoted(query string, start int, closing byte) int {
	for i := start + 1; i < len(query); i++ {
		if query[i] == closing {
			if i+1 < len(query) && query[i+1] == closing {
				i++
				continue
			}
			return i
		}
	}
	return len(query)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

package expression

import "strings"

// The resolvable vocabulary is closed: a payload substitution, a memory
// read, a calculation, and a stored-script invocation. The scanner turns
// the leftmost innermost occurrence into a tagged call so the resolver can
// splice results inside-out.

type callKind int

const (
	callRead callKind = iota
	callCalc
	callScript
)

// call is one resolvable occurrence inside a template. start/end delimit
// the full call text (keyword through closing parenthesis) in byte
// offsets; argStart marks where the raw argument text begins.
type call struct {
	kind     callKind
	name     string // script name, empty for read/calc
	arg      string
	start    int
	end      int
	argStart int
}

const (
	readKeyword      = "Read"
	calcKeyword      = "Calc"
	scriptSigil      = "::"
	inputKeyword     = "input"
	maxResolvePasses = 64
)

// scan returns the innermost leftmost resolvable call in s, descending
// into nested arguments like Calc(Read('counter') + 1). The second return
// is false when s contains no recognized calls; such text is literal.
func scan(s string) (call, bool) {
	c, ok := findNextCall(s)
	if !ok {
		return call{}, false
	}
	for {
		inner, ok := findNextCall(c.arg)
		if !ok {
			return c, true
		}
		inner.start += c.argStart
		inner.end += c.argStart
		inner.argStart += c.argStart
		c = inner
	}
}

// findNextCall walks s left to right for the first call keyword outside
// any quoted region. Unbalanced parentheses make the candidate literal
// text rather than a call.
func findNextCall(s string) (call, bool) {
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\'' || s[i] == '"':
			i = skipQuoted(s, i)
		case s[i] == ':' && strings.HasPrefix(s[i:], scriptSigil):
			if c, ok := parseScriptCall(s, i); ok {
				return c, true
			}
			i++ // skip past the sigil's first colon
		case keywordAt(s, i, readKeyword):
			if c, ok := parseKeywordCall(s, i, readKeyword, callRead); ok {
				return c, true
			}
		case keywordAt(s, i, calcKeyword):
			if c, ok := parseKeywordCall(s, i, calcKeyword, callCalc); ok {
				return c, true
			}
		}
	}
	return call{}, false
}

// keywordAt reports whether the keyword occurs at offset i, case folded,
// on an identifier boundary, and immediately followed by an opening
// parenthesis.
func keywordAt(s string, i int, keyword string) bool {
	if i > 0 && isIdentChar(s[i-1]) {
		return false
	}
	end := i + len(keyword)
	if end >= len(s) || s[end] != '(' {
		return false
	}
	return strings.EqualFold(s[i:end], keyword)
}

func parseKeywordCall(s string, start int, keyword string, kind callKind) (call, bool) {
	open := start + len(keyword)
	closing := matchParen(s, open)
	if closing < 0 {
		return call{}, false
	}
	return call{
		kind:     kind,
		arg:      s[open+1 : closing],
		start:    start,
		end:      closing + 1,
		argStart: open + 1,
	}, true
}

// parseScriptCall parses ::Name(args). A semicolon directly after the
// closing parenthesis belongs to the call and is consumed with it.
func parseScriptCall(s string, start int) (call, bool) {
	nameStart := start + len(scriptSigil)
	nameEnd := nameStart
	for nameEnd < len(s) && isIdentChar(s[nameEnd]) {
		nameEnd++
	}
	if nameEnd == nameStart || nameEnd >= len(s) || s[nameEnd] != '(' {
		return call{}, false
	}
	closing := matchParen(s, nameEnd)
	if closing < 0 {
		return call{}, false
	}
	end := closing + 1
	if end < len(s) && s[end] == ';' {
		end++
	}
	return call{
		kind:     callScript,
		name:     s[nameStart:nameEnd],
		arg:      s[nameEnd+1 : closing],
		start:    start,
		end:      end,
		argStart: nameEnd + 1,
	}, true
}

// matchParen returns the index of the parenthesis balancing s[open],
// skipping quoted regions, or -1 when the span never closes.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\'', '"':
			i = skipQuoted(s, i)
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// skipQuoted returns the index of the quote closing s[i], or the last
// index when the quote never closes.
func skipQuoted(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] == quote {
			return j
		}
	}
	return len(s) - 1
}

// unquote strips one layer of matching single or double quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// splitArgs splits a script argument list on top-level commas, honoring
// quotes and nested parentheses. An empty argument list yields nil.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '"':
			i = skipQuoted(s, i)
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, unquote(s[last:i]))
				last = i + 1
			}
		}
	}
	args = append(args, unquote(s[last:]))
	return args
}

// replaceFold replaces every occurrence of old in s, case folded. Used
// for the payload substitution step, which is plain text replacement.
func replaceFold(s, old, repl string) string {
	if old == "" {
		return s
	}
	var b strings.Builder
	lower := strings.ToLower(s)
	lowerOld := strings.ToLower(old)
	for {
		i := strings.Index(lower, lowerOld)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(repl)
		s = s[i+len(old):]
		lower = lower[i+len(old):]
	}
}

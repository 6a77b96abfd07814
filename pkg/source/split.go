package source

import "strings"

// splitter accumulates one statement at a time. raw keeps everything,
// comments included; code drops comments.
type splitter struct {
	stmts []Statement
	raw   strings.Builder
	code  strings.Builder
	depth int
}

// split breaks text into top-level statements. A statement ends at a `;`
// or at a line break once brackets are balanced and the line does not
// obviously continue. Comments before a statement belong to it.
func split(text string) []Statement {
	s := &splitter{}

	for i := 0; i < len(text); i++ {
		c := text[i]
		next := byte(0)
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch {
		case c == '/' && next == '/':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			s.raw.WriteString(text[i : i+end])
			i += end - 1
			continue

		case c == '/' && next == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				end = len(text)
			} else {
				end = i + 2 + end + 2
			}
			s.raw.WriteString(text[i:end])
			s.code.WriteByte(' ')
			i = end - 1
			continue

		case c == '"' || c == '\'' || c == '`':
			end := stringEnd(text, i)
			s.raw.WriteString(text[i:end])
			s.code.WriteString(text[i:end])
			i = end - 1
			continue

		case c == '{' || c == '(' || c == '[':
			s.depth++
		case c == '}' || c == ')' || c == ']':
			if s.depth > 0 {
				s.depth--
			}
		}

		s.raw.WriteByte(c)
		s.code.WriteByte(c)

		if s.depth == 0 && (c == ';' || (c == '\n' && complete(s.code.String()))) {
			s.flush()
		}
	}
	s.flush()

	// Trailing text belongs to the last statement.
	if n := len(s.stmts); n > 0 {
		s.stmts[n-1].Raw += s.raw.String()
	}
	return s.stmts
}

func (s *splitter) flush() {
	code := normalize(s.code.String())
	if code == "" {
		// Comment or blank lines only: keep raw text for the next statement.
		s.code.Reset()
		return
	}
	if code == ";" && len(s.stmts) > 0 {
		s.stmts[len(s.stmts)-1].Raw += s.raw.String()
		s.raw.Reset()
		s.code.Reset()
		return
	}

	s.stmts = append(s.stmts, Statement{
		Raw:  s.raw.String(),
		Code: strings.TrimSuffix(code, ";"),
	})
	s.raw.Reset()
	s.code.Reset()
}

func normalize(code string) string {
	return strings.Join(strings.Fields(code), " ")
}

// complete reports whether code can end at a line break.
func complete(code string) bool {
	t := strings.TrimSpace(code)
	if t == "" {
		return false
	}
	if strings.HasSuffix(t, "=>") {
		return false
	}
	switch t[len(t)-1] {
	case ',', '=', '+', '-', '*', '/', '&', '|', '?', ':', '.', '(', '<':
		return false
	}
	return true
}

// stringEnd returns the index just past the string literal starting at i.
func stringEnd(text string, i int) int {
	quote := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			if quote != '`' {
				return j
			}
		}
	}
	return len(text)
}

package encoding

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TermKind tags the shape of a fact argument.
type TermKind int

const (
	Int    TermKind = iota // 3
	Tuple                  // (1,2)
	Pool                   // (0;2) or (2)
	Symbol                 // foo
)

// Term is one argument of a fact.
type Term struct {
	Kind TermKind
	Ints []int
	Name string
}

func (t Term) String() string {
	switch t.Kind {
	case Int:
		return strconv.Itoa(t.Ints[0])
	case Tuple:
		return "(" + joinInts(t.Ints, ",") + ")"
	case Pool:
		return "(" + joinInts(t.Ints, ";") + ")"
	}
	return t.Name
}

// Value returns the integer of an Int term.
func (t Term) Value() (int, error) {
	if t.Kind != Int {
		return 0, fmt.Errorf("term %s is not an integer", t)
	}
	return t.Ints[0], nil
}

// Fact is a parsed ground statement such as cell((1,2),0,(0;2)).
type Fact struct {
	Predicate string
	Args      []Term
}

func (f Fact) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Predicate + "(" + strings.Join(args, ",") + ")."
}

// IsComment reports whether line carries no statement.
func IsComment(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "%")
}

// Predicate returns the predicate name of a statement without parsing its
// arguments. It returns "" for comments and lines that do not start with a name.
func Predicate(line string) string {
	s := strings.TrimSpace(line)
	end := strings.IndexAny(s, "(.% ")
	if end < 0 {
		end = len(s)
	}
	if name := s[:end]; isIdent(name) {
		return name
	}
	return ""
}

// ParseFact parses a single statement. A trailing "% ..." comment is ignored.
func ParseFact(line string) (Fact, error) {
	s := strings.TrimSpace(line)
	if i := strings.Index(s, "%"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimSuffix(s, ".")
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		if isIdent(s) {
			return Fact{Predicate: s}, nil
		}
		return Fact{}, fmt.Errorf("malformed fact %q", line)
	}
	name := s[:open]
	if !isIdent(name) {
		return Fact{}, fmt.Errorf("malformed predicate in %q", line)
	}
	parts, err := splitTopLevel(s[open+1 : len(s)-1])
	if err != nil {
		return Fact{}, fmt.Errorf("fact %q: %w", line, err)
	}
	f := Fact{Predicate: name}
	for _, p := range parts {
		t, err := parseTerm(p)
		if err != nil {
			return Fact{}, fmt.Errorf("fact %q: %w", line, err)
		}
		f.Args = append(f.Args, t)
	}
	return f, nil
}

// ParseLines parses every statement in lines, skipping comments and blank lines.
func ParseLines(lines []string) ([]Fact, error) {
	var facts []Fact
	for n, line := range lines {
		if IsComment(line) {
			continue
		}
		f, err := ParseFact(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func parseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Term{}, fmt.Errorf("empty argument")
	}
	if strings.HasPrefix(s, "(") {
		if !strings.HasSuffix(s, ")") {
			return Term{}, fmt.Errorf("unbalanced %q", s)
		}
		inner := s[1 : len(s)-1]
		kind, sep := Pool, ";"
		if strings.Contains(inner, ",") {
			kind, sep = Tuple, ","
		}
		var ints []int
		for _, p := range strings.Split(inner, sep) {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return Term{}, fmt.Errorf("argument %q: %w", s, err)
			}
			ints = append(ints, v)
		}
		return Term{Kind: kind, Ints: ints}, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return Term{Kind: Int, Ints: []int{v}}, nil
	}
	if !isIdent(s) {
		return Term{}, fmt.Errorf("argument %q is not a number or symbol", s)
	}
	return Term{Kind: Symbol, Name: s}, nil
}

func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return append(parts, s[start:]), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return unicode.IsLower(rune(s[0]))
}

func joinInts(v []int, sep string) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, sep)
}

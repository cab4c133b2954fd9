package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultLoopLimit = 30

// Rule rewrites text and reports whether anything changed.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// Substitutions is an ordered rule list applied until the text stops changing.
//
// Rules file format, one rule per line, # starts a comment:
//
//	ms => milliseconds
//	s/\bAPI\b/A P I/g
type Substitutions struct {
	rules     []Rule
	loopLimit int
}

// LoadSubstitutions reads a rules file. A blank path or a missing file yields
// an empty rule set.
func LoadSubstitutions(path string, loopLimit int) (*Substitutions, error) {
	if strings.TrimSpace(path) == "" {
		return ParseSubstitutions("", loopLimit)
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ParseSubstitutions("", loopLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	subs, err := ParseSubstitutions(string(contents), loopLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return subs, nil
}

// ParseSubstitutions compiles rules from text.
func ParseSubstitutions(contents string, loopLimit int) (*Substitutions, error) {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}
	subs := &Substitutions{loopLimit: loopLimit}

	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseRule(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		subs.rules = append(subs.rules, rule)
	}
	return subs, nil
}

// Len is the number of compiled rules.
func (s *Substitutions) Len() int {
	return len(s.rules)
}

// Apply runs every rule in order, repeating passes until a fixed point or
// the loop limit.
func (s *Substitutions) Apply(text string) string {
	for pass := 0; pass < s.loopLimit; pass++ {
		dirty := false
		for _, rule := range s.rules {
			if next, changed := rule.Apply(text); changed {
				text = next
				dirty = true
			}
		}
		if !dirty {
			break
		}
	}
	return text
}

func parseRule(line string) (Rule, error) {
	if isSedRule(line) {
		return parseSedRule(line)
	}
	if strings.Contains(line, "=>") {
		return parseLiteralRule(line)
	}
	return nil, errors.New("unsupported rule format")
}

// literalRule replaces a phrase case-insensitively.
type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseLiteralRule(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(from))
	return literalRule{re: re, replacement: to}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// sedRule is s<d>pattern<d>replacement<d>flags. Case-insensitive unless the
// pattern says otherwise; only the first match is replaced without g.
type sedRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func isSedRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func parseSedRule(line string) (Rule, error) {
	delim := line[1]
	parts, rest, err := splitDelimited(line[2:], delim, 2)
	if err != nil {
		return nil, err
	}

	global := false
	modes := "i"
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			modes += string(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modes + ")" + parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return sedRule{re: re, replacement: parts[1], global: global}, nil
}

func (r sedRule) Apply(input string) (string, bool) {
	var output string
	if r.global {
		output = r.re.ReplaceAllString(input, r.replacement)
	} else {
		loc := r.re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input, false
		}
		expanded := r.re.ExpandString(nil, r.replacement, input, loc)
		output = input[:loc[0]] + string(expanded) + input[loc[1]:]
	}
	return output, output != input
}

// splitDelimited reads count delimiter-terminated fields from s, keeping
// backslash escapes intact, and returns whatever follows the last one.
func splitDelimited(s string, delim byte, count int) ([]string, string, error) {
	fields := make([]string, 0, count)
	var current strings.Builder
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			fields = append(fields, current.String())
			current.Reset()
			if len(fields) == count {
				return fields, s[i+1:], nil
			}
			continue
		}
		current.WriteByte(c)
	}
	return nil, "", errors.New("unterminated expression")
}

func isWordOrSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '_' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

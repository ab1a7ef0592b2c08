package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// LineParser compiles one line of a rules file.
type LineParser interface {
	CanParse(line string) bool
	Parse(line string) (Rule, error)
}

// DefaultLineParsers understands, in order of precedence:
//
//	drop: um, uh, you know
//	s/pattern/replacement/flags
//	from => to
func DefaultLineParsers() []LineParser {
	return []LineParser{dropParser{}, regexParser{}, literalParser{}}
}

// ParseLines compiles a line-oriented rules file. Blank lines and lines
// starting with # are skipped.
func ParseLines(contents string, parsers []LineParser) ([]Rule, error) {
	if len(parsers) == 0 {
		parsers = DefaultLineParsers()
	}

	lines := strings.Split(contents, "\n")
	rules := make([]Rule, 0, len(lines))
	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseLine(line string, parsers []LineParser) (Rule, error) {
	for _, parser := range parsers {
		if parser.CanParse(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

type literalParser struct{}

func (literalParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalParser) Parse(line string) (Rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	return NewLiteral(strings.TrimSpace(from), strings.TrimSpace(to))
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

// NewLiteral replaces from with to, case-insensitively. Ends of from that
// are letters or digits only match at word boundaries, so "a => b" leaves
// "cat" alone.
func NewLiteral(from, to string) (Rule, error) {
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordRune(firstRune(from)) {
		pattern = `\b` + pattern
	}
	if isWordRune(lastRune(from)) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return regexRule{re: re, replacement: regexpLiteral(to), global: true}, nil
}

// NewRegex compiles a regular expression rule. Matching is always
// case-insensitive; without global only the first match is replaced.
func NewRegex(pattern, replacement string, global bool) (Rule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	var replaced []byte
	replaced = r.re.ExpandString(replaced, r.replacement, input, loc)
	output := input[:loc[0]] + string(replaced) + input[loc[1]:]
	return output, output != input
}

// regexpLiteral escapes $ so literal replacements are not expanded.
func regexpLiteral(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

type regexParser struct{}

func (regexParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordRune(rune(line[1])) && line[1] != ' ' && line[1] != '\t'
}

// Parse handles sed-style s/pattern/replacement/flags. Flags: g (global),
// m (multi-line), s (dot matches newline), i (accepted, always on).
func (regexParser) Parse(line string) (Rule, error) {
	delim := line[1]
	pattern, pos, err := scanDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := scanDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	global := false
	prefix := ""
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(prefix, flag) {
				prefix += string(flag)
			}
		case 'i', ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	return NewRegex(pattern, replacement, global)
}

func scanDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == delim:
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
	}
	return "", 0, errors.New("unterminated expression")
}

type dropParser struct{}

func (dropParser) CanParse(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), "drop:")
}

func (dropParser) Parse(line string) (Rule, error) {
	var words []string
	for _, word := range strings.Split(line[len("drop:"):], ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return NewDrop(words)
}

// NewDrop removes filler words or phrases along with a trailing comma.
func NewDrop(words []string) (Rule, error) {
	if len(words) == 0 {
		return nil, errors.New("drop rule needs at least one word")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b,?`)
	if err != nil {
		return nil, fmt.Errorf("invalid drop rule: %w", err)
	}
	return regexRule{re: re, global: true}, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	return runes[len(runes)-1]
}

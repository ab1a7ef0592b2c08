// Package rules cleans transcripts with deterministic substitutions before
// they are organized into notes.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const DefaultLoopLimit = 30

var ErrNotConverged = errors.New("rules did not converge")

// Rule rewrites text, reporting whether anything changed.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// Engine applies its rules repeatedly until the text stops changing.
type Engine struct {
	rules     []Rule
	loopLimit int
}

// New builds an engine from compiled rules. Runs of spaces left behind by
// removals are always collapsed.
func New(rules []Rule, loopLimit int) *Engine {
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	all := make([]Rule, 0, len(rules)+1)
	all = append(all, rules...)
	all = append(all, spaceRule{})
	return &Engine{rules: all, loopLimit: loopLimit}
}

// Load reads rules from path. Files ending in .yaml or .yml use the YAML
// format; anything else is one rule per line. A missing file or empty path
// yields an engine that only normalizes spacing.
func Load(path string, loopLimit int) (*Engine, error) {
	return LoadWithParsers(path, loopLimit, DefaultLineParsers())
}

// LoadWithParsers is Load with a custom set of line parsers.
func LoadWithParsers(path string, loopLimit int, parsers []LineParser) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil, loopLimit), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(nil, loopLimit), nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	var rules []Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rules, err = ParseYAML(contents)
	default:
		rules, err = ParseLines(string(contents), parsers)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return New(rules, loopLimit), nil
}

// Apply transforms text. It fails when the rules keep rewriting each
// other's output past the loop limit.
func (e *Engine) Apply(text string) (string, error) {
	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}
	return "", fmt.Errorf("%w after %d passes", ErrNotConverged, e.loopLimit)
}

// Len reports the number of user rules.
func (e *Engine) Len() int {
	return len(e.rules) - 1
}

var spaceRun = regexp.MustCompile(`[ \t]{2,}|[ \t]+([,.!?;:])`)

type spaceRule struct{}

func (spaceRule) Apply(input string) (string, bool) {
	output := spaceRun.ReplaceAllStringFunc(input, func(match string) string {
		trimmed := strings.TrimLeft(match, " \t")
		if trimmed == "" {
			return " "
		}
		return trimmed
	})
	output = strings.TrimSpace(output)
	return output, output != input
}

package rules

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlFile is the structured rules format:
//
//	rules:
//	  - from: pull request
//	    to: PR
//	  - pattern: '\bdeep\s*mind\b'
//	    to: DeepMind
//	    global: true
//	  - drop: [um, uh]
type yamlFile struct {
	Rules []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	From    string   `yaml:"from"`
	Pattern string   `yaml:"pattern"`
	To      string   `yaml:"to"`
	Global  bool     `yaml:"global"`
	Drop    []string `yaml:"drop"`
}

// ParseYAML compiles a YAML rules document.
func ParseYAML(contents []byte) ([]Rule, error) {
	var file yamlFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("invalid rules yaml: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		rule, err := r.compile()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r yamlRule) compile() (Rule, error) {
	set := 0
	for _, present := range []bool{r.From != "", r.Pattern != "", len(r.Drop) > 0} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of from, pattern or drop is required")
	}

	switch {
	case r.From != "":
		return NewLiteral(r.From, r.To)
	case r.Pattern != "":
		return NewRegex(r.Pattern, r.To, r.Global)
	default:
		return NewDrop(r.Drop)
	}
}

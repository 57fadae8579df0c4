// Package hints matches captured tool output against a rule database and
// produces actionable diagnostics for common build failures.
package hints

import (
	"bufio"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/embuild/embuild/internal/domain"
)

//go:embed rules.yml
var defaultRules []byte

// VariableSet parameterizes one rule: ReVariables fill the {} placeholders
// of the pattern template, HintVariables those of the message template.
type VariableSet struct {
	ReVariables   []string `yaml:"re_variables"`
	HintVariables []string `yaml:"hint_variables"`
}

// Rule is one entry of the database. Re is required; Hint is the message
// template; MatchToOutput exposes the matched groups to the message.
type Rule struct {
	Re            string        `yaml:"re"`
	Hint          string        `yaml:"hint"`
	MatchToOutput bool          `yaml:"match_to_output"`
	Variables     []VariableSet `yaml:"variables"`
}

// Engine implements domain.HintScanner over a loaded rule database.
type Engine struct {
	rules []Rule
}

// NewEngine loads the embedded default rule database.
func NewEngine() (*Engine, error) {
	return newEngineFromBytes(defaultRules)
}

// NewEngineFromFile loads the rule database at path, overriding the
// embedded default.
func NewEngineFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newEngineFromBytes(data)
}

// NewEngineFromRules creates an engine over an in-memory rule list.
func NewEngineFromRules(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

func newEngineFromBytes(data []byte) (*Engine, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, domain.NewConfigError("cannot parse the hint rules file: %v", err)
	}
	return &Engine{rules: rules}, nil
}

// Scan reads each file, flattens its content to one whitespace-joined line
// and returns every hint whose rule matches. Matching is content-based,
// not line-position-based. A malformed rule terminates the scan with a
// configuration error rather than being skipped.
func (e *Engine) Scan(paths ...string) ([]string, error) {
	var hints []string
	for _, path := range paths {
		output, err := flattenFile(path)
		if err != nil {
			return nil, err
		}
		for _, rule := range e.rules {
			matched, err := rule.apply(output)
			if err != nil {
				return nil, err
			}
			hints = append(hints, matched...)
		}
	}
	return hints, nil
}

// flattenFile joins the stripped non-empty lines of path with spaces.
func flattenFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " "), scanner.Err()
}

// apply returns the hints this rule contributes for the flattened output.
// Every matching variable set contributes one hint.
func (r Rule) apply(output string) ([]string, error) {
	if r.Re == "" {
		return nil, domain.NewConfigError("argument 're' missing in rule %+v. Check the hint rules file.", r)
	}

	if len(r.Variables) > 0 {
		var hints []string
		for _, vars := range r.Variables {
			pattern, err := formatTemplate(r.Re, vars.ReVariables)
			if err != nil {
				return nil, domain.NewConfigError("argument missing in rule %+v: %v. Check the hint rules file.", r, err)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, domain.NewConfigError("%s from the hint rules has a problem: %v. Check the hint rules file.", r.Re, err)
			}
			if !re.MatchString(output) {
				continue
			}
			if r.Hint == "" {
				return nil, domain.NewConfigError("argument 'hint' missing in rule %+v. Check the hint rules file.", r)
			}
			msg, err := formatTemplate(r.Hint, vars.HintVariables)
			if err != nil {
				return nil, domain.NewConfigError("argument missing in rule %+v: %v. Check the hint rules file.", r, err)
			}
			hints = append(hints, "HINT: "+msg)
		}
		return hints, nil
	}

	re, err := regexp.Compile(r.Re)
	if err != nil {
		return nil, domain.NewConfigError("%s from the hint rules has a problem: %v. Check the hint rules file.", r.Re, err)
	}
	m := re.FindStringSubmatch(output)
	if m == nil {
		return nil, nil
	}
	if r.Hint == "" {
		return nil, domain.NewConfigError("argument 'hint' missing in rule %+v. Check the hint rules file.", r)
	}
	extra := ""
	if r.MatchToOutput {
		extra = strings.Join(m[1:], ", ")
	}
	msg, err := formatTemplate(r.Hint, []string{extra})
	if err != nil {
		return nil, domain.NewConfigError("argument missing in rule %+v: %v. Check the hint rules file.", r, err)
	}
	return []string{"HINT: " + msg}, nil
}

// formatTemplate substitutes the {} placeholders of template with args in
// order. Unconsumed arguments are allowed; a placeholder without an
// argument is an error.
func formatTemplate(template string, args []string) (string, error) {
	parts := strings.Split(template, "{}")
	if len(parts)-1 > len(args) {
		return "", fmt.Errorf("template %q needs %d arguments, have %d", template, len(parts)-1, len(args))
	}
	var b strings.Builder
	for i, part := range parts {
		b.WriteString(part)
		if i < len(parts)-1 {
			b.WriteString(args[i])
		}
	}
	return b.String(), nil
}

// Ensure Engine implements domain.HintScanner.
var _ domain.HintScanner = (*Engine)(nil)

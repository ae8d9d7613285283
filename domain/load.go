package domain

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Spyderisk/system-modeller-sub004/pattern"
	"github.com/Spyderisk/system-modeller-sub004/threat"
)

var (
	// ErrInvalidModel is returned when a domain model fails validation.
	ErrInvalidModel = errors.New("invalid domain model")

	// ErrNoModels is returned by LoadDir when a directory holds no model files.
	ErrNoModels = errors.New("no domain models found")
)

var validate = validator.New()

// Load reads and validates a domain model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
// A domain name and version may appear only once.
func LoadDir(dir string) ([]*Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read domain directory: %w", err)
	}

	var models []*Model
	seen := make(map[string]string)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		m, err := Load(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[m.Key()]; ok {
			return nil, fmt.Errorf("%w: %s defined in both %s and %s", ErrInvalidModel, m.Key(), prev, path)
		}
		seen[m.Key()] = path
		models = append(models, m)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoModels, dir)
	}
	return models, nil
}

// Parse decodes and validates a YAML domain model. Unknown fields are
// rejected.
func Parse(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Model
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse domain model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the model's fields and every reference between its
// entities. All problems found are reported together.
func (m *Model) Validate() error {
	var problems []string

	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	problems = append(problems, m.checkReferences()...)
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidModel, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Model.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}

func (m *Model) checkReferences() []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	types := make(map[string]bool, len(m.AssetTypes))
	for _, t := range m.AssetTypes {
		if types[t.ID] {
			report("duplicate asset type %q", t.ID)
		}
		types[t.ID] = true
	}
	for _, t := range m.AssetTypes {
		for _, p := range t.Parents {
			if !types[p] {
				report("asset type %q has unknown parent %q", t.ID, p)
			}
		}
	}
	if cyc := m.typeCycle(); cyc != "" {
		report("asset type hierarchy has a cycle through %q", cyc)
	}

	roles := make(map[string]bool, len(m.Roles))
	for _, r := range m.Roles {
		if roles[r.Role] {
			report("duplicate role %q", r.Role)
		}
		roles[r.Role] = true
		for _, t := range r.Types {
			if !types[t] {
				report("role %q refers to unknown asset type %q", r.Role, t)
			}
		}
	}

	checkScale := func(name string, s threat.Scale) {
		ids := make(map[string]bool, len(s))
		for _, l := range s {
			if l.ID == "" {
				report("%s level without id", name)
			}
			if ids[l.ID] {
				report("duplicate %s level %q", name, l.ID)
			}
			ids[l.ID] = true
		}
	}
	checkScale("impact", m.Levels.Impact)
	checkScale("likelihood", m.Levels.Likelihood)
	checkScale("risk", m.Levels.Risk)
	checkScale("trustworthiness", m.Levels.Trustworthiness)
	checkScale("coverage", m.Levels.Coverage)

	for _, e := range m.RiskMatrix {
		if _, ok := m.Levels.Impact.Lookup(e.Impact); !ok {
			report("risk matrix refers to unknown impact level %q", e.Impact)
		}
		if _, ok := m.Levels.Likelihood.Lookup(e.Likelihood); !ok {
			report("risk matrix refers to unknown likelihood level %q", e.Likelihood)
		}
		if _, ok := m.Levels.Risk.Lookup(e.Risk); !ok {
			report("risk matrix refers to unknown risk level %q", e.Risk)
		}
	}

	misbehaviours := make(map[string]bool, len(m.Misbehaviours))
	for _, mb := range m.Misbehaviours {
		if misbehaviours[mb.ID] {
			report("duplicate misbehaviour %q", mb.ID)
		}
		misbehaviours[mb.ID] = true
		if mb.Impact != "" {
			if _, ok := m.Levels.Impact.Lookup(mb.Impact); !ok {
				report("misbehaviour %q has unknown impact level %q", mb.ID, mb.Impact)
			}
		}
	}

	controls := make(map[string]bool, len(m.Controls))
	for _, c := range m.Controls {
		if controls[c.ID] {
			report("duplicate control %q", c.ID)
		}
		controls[c.ID] = true
	}

	patterns := make(map[string]pattern.Definition, len(m.Patterns))
	for _, p := range m.Patterns {
		if _, dup := patterns[p.Name]; dup {
			report("duplicate pattern %q", p.Name)
		}
		patterns[p.Name] = p
		if _, err := pattern.Compile(p); err != nil {
			report("%v", err)
		}
		for _, r := range p.Roles {
			if !roles[r.Name] {
				report("pattern %q uses undeclared role %q", p.Name, r.Name)
			}
		}
		for _, pn := range p.ProhibitedNodes {
			if !roles[pn.Role] {
				report("pattern %q prohibits undeclared role %q", p.Name, pn.Role)
			}
		}
	}

	threats := make(map[string]bool, len(m.Threats))
	for _, td := range m.Threats {
		if threats[td.ID] {
			report("duplicate threat %q", td.ID)
		}
		threats[td.ID] = true

		p, ok := patterns[td.Pattern]
		if !ok {
			report("threat %q refers to unknown pattern %q", td.ID, td.Pattern)
			continue
		}
		patternRoles := make(map[string]bool, len(p.Roles))
		for _, r := range p.Roles {
			patternRoles[r.Name] = true
		}
		if td.Threatens != "" && !patternRoles[td.Threatens] {
			report("threat %q threatens role %q not in pattern %q", td.ID, td.Threatens, p.Name)
		}
		if td.Frequency != "" {
			if _, ok := m.Levels.Likelihood.Lookup(td.Frequency); !ok {
				report("threat %q has unknown frequency level %q", td.ID, td.Frequency)
			}
		}

		checkEntities := func(what string, list []RoleEntity, known map[string]bool) {
			for _, e := range list {
				if !patternRoles[e.Role] {
					report("threat %q %s at role %q not in pattern %q", td.ID, what, e.Role, p.Name)
				}
				if !known[e.ID] {
					report("threat %q refers to unknown %s %q", td.ID, what, e.ID)
				}
			}
		}
		checkEntities("misbehaviour", td.Effects, misbehaviours)
		checkEntities("misbehaviour", td.Causes, misbehaviours)

		strategies := make(map[string]bool, len(td.ControlStrategies))
		for _, sd := range td.ControlStrategies {
			if strategies[sd.ID] {
				report("threat %q has duplicate control strategy %q", td.ID, sd.ID)
			}
			strategies[sd.ID] = true
			if sd.BlockingEffect != "" {
				if _, ok := m.Levels.Trustworthiness.Lookup(sd.BlockingEffect); !ok {
					report("control strategy %q has unknown blocking effect level %q", sd.ID, sd.BlockingEffect)
				}
			}
			checkEntities("control", sd.Mandatory, controls)
			checkEntities("control", sd.Optional, controls)
		}
	}

	sort.Strings(problems)
	return problems
}

// typeCycle returns a type that lies on a cycle of the parent relation, or "".
func (m *Model) typeCycle() string {
	parents := make(map[string][]string, len(m.AssetTypes))
	for _, t := range m.AssetTypes {
		parents[t.ID] = t.Parents
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(parents))

	var visit func(string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		for _, p := range parents[id] {
			if c := visit(p); c != "" {
				return c
			}
		}
		state[id] = done
		return ""
	}

	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c := visit(id); c != "" {
			return c
		}
	}
	return ""
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
)

// Scenario defines a rule scenario: the rules to load, the events to emit
// and the assertions on the resulting effects.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tenant is the default tenant for rules and events.
	Tenant string `yaml:"tenant"`

	// Rules lists CUE rule files, relative to the scenario file.
	Rules []string `yaml:"rules,omitempty"`

	// Source holds inline CUE rules, compiled after Rules.
	Source string `yaml:"source,omitempty"`

	// MessengerFail makes every send fail with this reason.
	MessengerFail string `yaml:"messenger_fail,omitempty"`

	// Events are emitted in order.
	Events []EventStep `yaml:"events"`

	// Assertions validate the effects after all events ran.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one trigger event to emit.
type EventStep struct {
	Type string `yaml:"type"`

	// Tenant overrides the scenario tenant.
	Tenant string `yaml:"tenant,omitempty"`

	Data map[string]any `yaml:"data"`

	// Expect checks the summary of this emit. Nil skips the check.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected emit counters. Unset fields are not
// checked.
type ExpectClause struct {
	Matched *int `yaml:"matched,omitempty"`
	Failed  *int `yaml:"failed,omitempty"`
	Aborted *int `yaml:"aborted,omitempty"`
}

// Assertion validates sends, trace or final records.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Channel, To and Subject select messages (sent).
	Channel string `yaml:"channel,omitempty"`
	To      string `yaml:"to,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// Action is the action type (action_count).
	Action string `yaml:"action,omitempty"`

	// Actions is the expected relative order (action_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (sent_count, action_count).
	Count int `yaml:"count"`

	// Title selects a task (task_exists).
	Title string `yaml:"title,omitempty"`

	// Contact is the contact ID (task_exists, contact_tags).
	Contact string `yaml:"contact,omitempty"`

	// Tags is the exact expected tag set (contact_tags).
	Tags []string `yaml:"tags,omitempty"`
}

// Assertion type constants.
const (
	AssertSent        = "sent"
	AssertSentCount   = "sent_count"
	AssertActionOrder = "action_order"
	AssertActionCount = "action_count"
	AssertTaskExists  = "task_exists"
	AssertContactTags = "contact_tags"
)

// LoadScenario reads and parses a scenario YAML file. Rule paths are
// resolved relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving rule paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	for i, rulePath := range scenario.Rules {
		if !filepath.IsAbs(rulePath) && basePath != "" {
			scenario.Rules[i] = filepath.Join(basePath, rulePath)
		}
	}
	for _, rulePath := range scenario.Rules {
		if _, err := os.Stat(rulePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: rule file not found: %s", rulePath)
		}
	}
	return scenario, nil
}

// ParseScenario decodes a scenario document. Unknown fields are rejected
// so typos like "assertion:" fail loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Tenant == "" {
		return fmt.Errorf("tenant is required")
	}
	if len(s.Rules) == 0 && s.Source == "" {
		return fmt.Errorf("rules or source is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, step := range s.Events {
		if _, err := ir.ParseTriggerType(step.Type); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSent:
		if a.Channel == "" && a.To == "" && a.Subject == "" {
			return fmt.Errorf("assertions[%d]: sent needs channel, to or subject", index)
		}
	case AssertSentCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for sent_count", index)
		}
	case AssertActionOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for action_order", index)
		}
	case AssertActionCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for action_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for action_count", index)
		}
	case AssertTaskExists:
		if a.Title == "" {
			return fmt.Errorf("assertions[%d]: title is required for task_exists", index)
		}
	case AssertContactTags:
		if a.Contact == "" {
			return fmt.Errorf("assertions[%d]: contact is required for contact_tags", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

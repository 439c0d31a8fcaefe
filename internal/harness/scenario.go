package harness

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Scenario is one registration flow with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sessions maps an alias used in steps to a session identity.
	Sessions map[string]SessionDef `yaml:"sessions"`

	// Links are stored before any step runs.
	Links []LinkDef `yaml:"links,omitempty"`

	// StoreDown closes the store after seeding, so every query fails.
	StoreDown bool `yaml:"store_down,omitempty"`

	// Steps are played in order, each to completion.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// SessionDef identifies one connected session.
type SessionDef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// LinkDef is a link that exists before the scenario starts.
type LinkDef struct {
	Session string `yaml:"session"`
	Account int64  `yaml:"account"`
}

// Step is one event delivered to the coordinator.
type Step struct {
	// Op is join, move, command, message or disconnect.
	Op string `yaml:"op"`

	// Session is the alias of the session the event comes from.
	Session string `yaml:"session"`

	// Pos is x, y, z in the default world (join, move, command).
	Pos []float64 `yaml:"pos,omitempty"`

	// Command is the command text (command).
	Command string `yaml:"command,omitempty"`

	// Claims is the identity named by the assertion (message). A known
	// alias is replaced by that session's id.
	Claims string `yaml:"claims,omitempty"`

	// Account is the account id carried by the assertion (message).
	Account int64 `yaml:"account,omitempty"`

	// Channel overrides the channel name (message).
	Channel string `yaml:"channel,omitempty"`

	// Payload replaces the encoded assertion with base64 bytes (message).
	Payload string `yaml:"payload,omitempty"`
}

// Assertion validates the state after the last step.
type Assertion struct {
	// Type is frozen, unfrozen, linked, unlinked, feedback or log_contains.
	Type string `yaml:"type"`

	// Session is the alias the assertion is about.
	Session string `yaml:"session,omitempty"`

	// Account is the expected account (linked). Zero matches any.
	Account int64 `yaml:"account,omitempty"`

	// Kinds is the expected feedback sequence (feedback).
	Kinds []string `yaml:"kinds,omitempty"`

	// Message is the expected log message (log_contains).
	Message string `yaml:"message,omitempty"`

	// Level optionally narrows log_contains to one level.
	Level string `yaml:"level,omitempty"`
}

// Step operations.
const (
	OpJoin       = "join"
	OpMove       = "move"
	OpCommand    = "command"
	OpMessage    = "message"
	OpDisconnect = "disconnect"
)

// Assertion type constants.
const (
	AssertFrozen      = "frozen"
	AssertUnfrozen    = "unfrozen"
	AssertLinked      = "linked"
	AssertUnlinked    = "unlinked"
	AssertFeedback    = "feedback"
	AssertLogContains = "log_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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

	if len(s.Sessions) == 0 {
		return fmt.Errorf("sessions map is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for alias, def := range s.Sessions {
		if _, err := uuid.Parse(def.ID); err != nil {
			return fmt.Errorf("sessions[%s]: invalid id %q", alias, def.ID)
		}
	}

	for i, l := range s.Links {
		if _, ok := s.Sessions[l.Session]; !ok {
			return fmt.Errorf("links[%d]: unknown session %q", i, l.Session)
		}
		if l.Account == 0 {
			return fmt.Errorf("links[%d]: account is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, s, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, s, &a); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Scenario, step *Step) error {
	if _, ok := s.Sessions[step.Session]; !ok {
		return fmt.Errorf("steps[%d]: unknown session %q", index, step.Session)
	}

	switch step.Op {
	case OpJoin, OpMove:
		if len(step.Pos) != 0 && len(step.Pos) != 3 {
			return fmt.Errorf("steps[%d]: pos must have 3 coordinates", index)
		}
	case OpCommand:
		if step.Command == "" {
			return fmt.Errorf("steps[%d]: command is required", index)
		}
	case OpMessage:
		if step.Payload != "" {
			if _, err := base64.StdEncoding.DecodeString(step.Payload); err != nil {
				return fmt.Errorf("steps[%d]: payload is not base64: %w", index, err)
			}
		} else if step.Claims == "" {
			return fmt.Errorf("steps[%d]: claims or payload is required", index)
		}
	case OpDisconnect:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, s *Scenario, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFrozen, AssertUnfrozen, AssertLinked, AssertUnlinked, AssertFeedback:
		if _, ok := s.Sessions[a.Session]; !ok {
			return fmt.Errorf("assertions[%d]: unknown session %q for %s", index, a.Session, a.Type)
		}
	case AssertLogContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for log_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

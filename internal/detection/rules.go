package detection

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sentinelmesh/internal/alerts"
	"sentinelmesh/internal/events"
)

// Rule is a threshold rule over one source ip: fire when at least Threshold
// events of EventTypes arrive within Window.
type Rule struct {
	ID         string
	EventTypes []events.Type
	Window     time.Duration
	Threshold  int
	Severity   alerts.Severity
	Note       string
}

const (
	RuleBruteForceLogin   = "brute_force_login"
	RuleInvalidTokenBurst = "invalid_token_burst"
)

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:         RuleBruteForceLogin,
			EventTypes: []events.Type{events.TypeLoginFailed},
			Window:     120 * time.Second,
			Threshold:  5,
			Severity:   alerts.SeverityHigh,
			Note:       "Too many failed logins from same IP",
		},
		{
			ID:         RuleInvalidTokenBurst,
			EventTypes: []events.Type{events.TypeInvalidToken, events.TypeInvalidTokenClaims, events.TypeMissingToken},
			Window:     120 * time.Second,
			Threshold:  10,
			Severity:   alerts.SeverityMedium,
			Note:       "Burst of invalid/missing JWTs (possible probing)",
		},
	}
}

func (r Rule) Matches(t events.Type) bool {
	for _, et := range r.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

func (r Rule) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if len(r.EventTypes) == 0 {
		errs = append(errs, errors.New("at least one event type is required"))
	}
	if r.Window <= 0 {
		errs = append(errs, errors.New("window must be positive"))
	}
	if r.Threshold < 1 {
		errs = append(errs, errors.New("threshold must be at least 1"))
	}
	if !r.Severity.Valid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", r.Severity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("rule %q: %w", r.ID, errors.Join(errs...))
	}
	return nil
}

func (r Rule) clone() Rule {
	r.EventTypes = append([]events.Type(nil), r.EventTypes...)
	return r
}

type ruleFile struct {
	Rules []ruleConfig `yaml:"rules"`
}

type ruleConfig struct {
	ID        string        `yaml:"id"`
	Events    []string      `yaml:"events"`
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
	Severity  string        `yaml:"severity"`
	Note      string        `yaml:"note"`
}

// LoadRules reads a rule set from YAML. The file is read once at startup;
// rules cannot be changed while the engine runs.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	seen := make(map[string]bool, len(rf.Rules))
	rules := make([]Rule, 0, len(rf.Rules))
	for _, rc := range rf.Rules {
		r := Rule{
			ID:        rc.ID,
			Window:    rc.Window,
			Threshold: rc.Threshold,
			Severity:  alerts.Severity(rc.Severity),
			Note:      rc.Note,
		}
		for _, ev := range rc.Events {
			r.EventTypes = append(r.EventTypes, events.Type(ev))
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}
	return rules, nil
}

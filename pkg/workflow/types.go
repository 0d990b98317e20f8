// Package workflow implements the rule-matching interpreter that drives a
// controllable browser against a declarative scraping workflow.
package workflow

import (
	"encoding/json"
	"regexp"

	"github.com/use-agent/workflowrunner/internal/selector"
)

// StringOrRegex holds either a literal string or a compiled regular
// expression, matching the "string or regex" leaves allowed in a Condition.
type StringOrRegex struct {
	Literal string
	Regex   *regexp.Regexp
}

// UnmarshalJSON accepts either a plain JSON string or an object of the form
// {"pattern": "..."} denoting a regular expression.
func (s *StringOrRegex) UnmarshalJSON(data []byte) error {
	var lit string
	if err := json.Unmarshal(data, &lit); err == nil {
		s.Literal = lit
		return nil
	}
	var wrapped struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	re, err := regexp.Compile(wrapped.Pattern)
	if err != nil {
		return err
	}
	s.Regex = re
	return nil
}

// Match reports whether value satisfies this literal-or-regex.
func (s *StringOrRegex) Match(value string) bool {
	if s == nil {
		return false
	}
	if s.Regex != nil {
		return s.Regex.MatchString(value)
	}
	return s.Literal == value
}

// String renders the underlying pattern or literal for logging.
func (s *StringOrRegex) String() string {
	if s == nil {
		return ""
	}
	if s.Regex != nil {
		return s.Regex.String()
	}
	return s.Literal
}

// Condition is the "where" half of a Rule: a tree of leaf and logical
// clauses tested against the current PageState and UsedActions.
type Condition struct {
	URL       *StringOrRegex            `json:"url,omitempty"`
	Cookies   map[string]StringOrRegex  `json:"cookies,omitempty"`
	Selectors []string                  `json:"selectors,omitempty"`

	And []*Condition `json:"$and,omitempty"`
	Or  []*Condition `json:"$or,omitempty"`
	Not *Condition   `json:"$not,omitempty"`

	Before *StringOrRegex `json:"$before,omitempty"`
	After  *StringOrRegex `json:"$after,omitempty"`
}

// Action is a single "what" step: either a built-in (scrape, scrapeList,
// scroll, ...) or a dotted driver method call (keyboard.press).
type Action struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
	Name   string          `json:"name,omitempty"`
}

// Rule is the unit of a workflow: a guard and the actions carried out when
// the guard fires.
type Rule struct {
	ID    string     `json:"id,omitempty"`
	Where *Condition `json:"where,omitempty"`
	What  []Action   `json:"what"`
}

// WorkflowFile is the on-disk representation of a workflow: an ordered list
// of rules, validated upstream before it reaches the interpreter.
type WorkflowFile struct {
	Rules []Rule `json:"rules"`
}

// PageState is a point-in-time read of the active page, consulted by the
// optional applicable-rule matcher (see MatchPolicyApplicable).
type PageState struct {
	URL       string
	Cookies   map[string]string
	Selectors map[string]struct{}
}

// substituteParams walks what[].args replacing {"$param": name} placeholders
// with the corresponding entry from params. Unresolvable placeholders are
// left untouched so validation upstream can flag them.
func substituteParams(raw json.RawMessage, params map[string]any) json.RawMessage {
	if len(raw) == 0 || len(params) == 0 {
		return raw
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	replaced := substituteValue(generic, params)
	out, err := json.Marshal(replaced)
	if err != nil {
		return raw
	}
	return out
}

func substituteValue(v any, params map[string]any) any {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if name, ok := val["$param"].(string); ok {
				if resolved, found := params[name]; found {
					return resolved
				}
				return v
			}
		}
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = substituteValue(sub, params)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = substituteValue(sub, params)
		}
		return out
	default:
		return v
	}
}

// cloneWorkflow deep-copies rules so the interpreter can mutate its own
// working copy without touching the caller's WorkflowFile, and strips any
// in-page-only selector (">>"" or ":>>") from where.selectors per the C6
// preprocessing pass — those selectors are shadow/frame-piercing primitives
// meaningful only inside the in-page script library, not as page-level
// presence signals.
func cloneWorkflow(wf WorkflowFile, params map[string]any) []Rule {
	rules := make([]Rule, len(wf.Rules))
	for i, r := range wf.Rules {
		rules[i] = cloneRule(r, params)
	}
	return rules
}

func cloneRule(r Rule, params map[string]any) Rule {
	out := Rule{ID: r.ID, Where: cloneCondition(r.Where)}
	out.What = make([]Action, len(r.What))
	for i, a := range r.What {
		out.What[i] = Action{
			Action: a.Action,
			Name:   a.Name,
			Args:   substituteParams(a.Args, params),
		}
	}
	return out
}

func cloneCondition(c *Condition) *Condition {
	if c == nil {
		return nil
	}
	out := &Condition{
		URL:    c.URL,
		Before: c.Before,
		After:  c.After,
	}
	if c.Cookies != nil {
		out.Cookies = make(map[string]StringOrRegex, len(c.Cookies))
		for k, v := range c.Cookies {
			out.Cookies[k] = v
		}
	}
	if c.Selectors != nil {
		out.Selectors = filterInPageSelectors(c.Selectors)
	}
	if c.And != nil {
		out.And = make([]*Condition, len(c.And))
		for i, sub := range c.And {
			out.And[i] = cloneCondition(sub)
		}
	}
	if c.Or != nil {
		out.Or = make([]*Condition, len(c.Or))
		for i, sub := range c.Or {
			out.Or[i] = cloneCondition(sub)
		}
	}
	out.Not = cloneCondition(c.Not)
	return out
}

// filterInPageSelectors drops shadow-piercing (">>"") and frame-piercing
// (":>>"") selectors, which are in-page primitives, not page-level presence
// signals usable by the host-side matcher.
func filterInPageSelectors(selectors []string) []string {
	out := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if selector.IsInPageOnly(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

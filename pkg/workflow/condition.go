package workflow

// Applicable reports whether c is a "subset" of state and usedActions,
// per the match semantics of spec.md §3: every leaf must be satisfied,
// arrays compare orderlessly, two empty-array sides compare equal, and
// selectors match if at least one listed selector is present in state's
// selector set.
//
// This is the matcher behind MatchPolicyApplicable. It is not consulted by
// the default MatchPolicyTail, which always carries out the tail rule
// unconditionally — see Interpreter and the "Match policy divergence"
// design note in spec.md §9.
func (c *Condition) Applicable(state PageState, usedActions []string) bool {
	if c == nil {
		return true
	}

	if c.URL != nil && !c.URL.Match(state.URL) {
		return false
	}

	for name, want := range c.Cookies {
		got, ok := state.Cookies[name]
		if !ok {
			return false
		}
		if !want.Match(got) {
			return false
		}
	}

	if !selectorsSubset(c.Selectors, state.Selectors) {
		return false
	}

	for _, sub := range c.And {
		if !sub.Applicable(state, usedActions) {
			return false
		}
	}

	if len(c.Or) > 0 {
		any := false
		for _, sub := range c.Or {
			if sub.Applicable(state, usedActions) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	if c.Not != nil && c.Not.Applicable(state, usedActions) {
		return false
	}

	if c.Before != nil && !containsMatch(usedActions, c.Before) {
		return false
	}
	if c.After != nil && !containsMatch(usedActions, c.After) {
		return false
	}

	return true
}

// selectorsSubset implements the orderless "at least one listed selector is
// present" rule, with the special case that two empty sides compare equal.
func selectorsSubset(want []string, have map[string]struct{}) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if _, ok := have[w]; ok {
			return true
		}
	}
	return false
}

// collectSelectors walks c and every clause nested under $and/$or/$not,
// adding each selector named in a "selectors" leaf to out. Used by
// readPageState to learn which selectors are worth probing against the
// live page before MatchPolicyApplicable consults them.
func (c *Condition) collectSelectors(out map[string]struct{}) {
	if c == nil {
		return
	}
	for _, s := range c.Selectors {
		out[s] = struct{}{}
	}
	for _, sub := range c.And {
		sub.collectSelectors(out)
	}
	for _, sub := range c.Or {
		sub.collectSelectors(out)
	}
	c.Not.collectSelectors(out)
}

func containsMatch(usedActions []string, pattern *StringOrRegex) bool {
	for _, id := range usedActions {
		if pattern.Match(id) {
			return true
		}
	}
	return false
}

package engine

import (
	"fmt"

	"github.com/parleyhq/parley/core"
)

// ResolveTargets determines which agent ids must respond this turn. The
// returned slice is ordered; for the sequential modes the order is the
// dispatch order, for the concurrent modes it only fixes the fan-out set.
//
// In collaborative mode an @name token in the user text that uniquely
// matches a catalog agent restricts the turn to that single agent. Ambiguous
// or unknown mentions fall back to the full mode targets. Auto-reply turns
// pass empty userText, so mention targeting never outlives the turn that
// carried the mention.
func ResolveTargets(mode core.Mode, roles core.Roles, userText string, catalog core.Catalog) ([]string, error) {
	switch mode {
	case core.ModeCollaborative:
		if id, ok := mentionTarget(userText, catalog); ok {
			return []string{id}, nil
		}
		return []string{roles.System1, roles.System2}, nil
	case core.ModeParallel:
		return []string{roles.System1, roles.System2}, nil
	case core.ModeExpertCouncil:
		if len(roles.Council) > 0 {
			return append([]string(nil), roles.Council...), nil
		}
		// Documented default: fall back to the two-party pair.
		return []string{roles.System1, roles.System2}, nil
	case core.ModeDebate:
		targets := []string{roles.Proponent, roles.Opponent}
		if roles.Moderator != "" {
			targets = append(targets, roles.Moderator)
		}
		return targets, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

// mentionTarget scans userText for @name tokens and returns the agent id of
// a uniquely matching catalog agent. Multiple mentions are honored in order:
// the first token with a unique match wins.
func mentionTarget(userText string, catalog core.Catalog) (string, bool) {
	for _, name := range mentions(userText) {
		matches := catalog.ByName(name)
		if len(matches) == 1 {
			return matches[0].ID, true
		}
	}
	return "", false
}

// mentions extracts the candidate names following @ tokens. A name runs
// until whitespace or punctuation that cannot appear in an agent name.
func mentions(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(text) && isNameChar(text[j]) {
			j++
		}
		if j > i+1 {
			out = append(out, text[i+1:j])
		}
		i = j - 1
	}
	return out
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Package integrity turns captured anti-cheat events into a suspicion verdict.
package integrity

import "github.com/stemsi/exstem-engine/internal/model"

// MaxActivities is the number of recorded activities above which a
// submission is suspicious regardless of policy.
const MaxActivities = 5

// Classify returns the suspicion verdict for summary under policy.
// All comparisons are strictly greater-than.
func Classify(summary model.IntegritySummary, policy model.AntiCheatPolicy) bool {
	return summary.TabSwitches > policy.MaxTabSwitches ||
		summary.FullscreenExits > policy.MaxFullscreenExits ||
		len(summary.SuspiciousActivities) > MaxActivities
}

// Normalize drops unknown event kinds and raises the counters to at least
// the number of matching events, so counts cannot be under-reported while
// the events themselves are listed. Negative counters become zero.
func Normalize(summary model.IntegritySummary) model.IntegritySummary {
	out := model.IntegritySummary{
		TabSwitches:     max(summary.TabSwitches, 0),
		FullscreenExits: max(summary.FullscreenExits, 0),
	}
	var tabs, exits int
	for _, ev := range summary.SuspiciousActivities {
		if !ev.Kind.Valid() {
			continue
		}
		switch ev.Kind {
		case model.EventTabSwitch:
			tabs++
		case model.EventFullscreenExit:
			exits++
		}
		out.SuspiciousActivities = append(out.SuspiciousActivities, ev)
	}
	out.TabSwitches = max(out.TabSwitches, tabs)
	out.FullscreenExits = max(out.FullscreenExits, exits)
	return out
}

// Evaluate normalizes summary and stamps the verdict on it.
func Evaluate(summary model.IntegritySummary, policy model.AntiCheatPolicy) model.IntegritySummary {
	out := Normalize(summary)
	out.IsSuspicious = Classify(out, policy)
	return out
}

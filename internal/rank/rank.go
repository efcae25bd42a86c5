// Package rank implements the PriorityRanker of spec.md §4.7: a stable
// total order over parsed, tool-eligible prompts by (status, version,
// source kind, id), used to pick exactly one tool-registered winner per id
// and to give reload a deterministic registration order.
package rank

import (
	"sort"

	"github.com/viant/promptmcp/internal/catalog"
)

// Less reports whether a ranks strictly higher than b (should come first).
func Less(a, b *catalog.Prompt) bool {
	if wa, wb := a.Status.Weight(), b.Status.Weight(); wa != wb {
		return wa > wb
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c > 0
	}
	if wa, wb := a.Source.Weight(), b.Source.Weight(); wa != wb {
		return wa > wb
	}
	return a.ID < b.ID
}

// Sort stably orders prompts highest-ranked first.
func Sort(prompts []*catalog.Prompt) {
	sort.SliceStable(prompts, func(i, j int) bool {
		return Less(prompts[i], prompts[j])
	})
}

// Resolve ranks tool-eligible documents from the user source and, after
// them, the system source, and returns:
//   - winners: exactly one *catalog.Prompt per id, in registration order —
//     the set that should be tool-registered;
//   - all: every eligible-or-not document supplied (for RuntimeState, which
//     also tracks warning/invalid/disabled entries for introspection).
//
// System-source documents are appended after user-source ones and are
// skipped from winners whenever their id already has a user-source winner
// (spec.md §4.7: "the user wins on conflict").
func Resolve(userDocs, systemDocs []*catalog.Prompt) (winners, all []*catalog.Prompt) {
	all = make([]*catalog.Prompt, 0, len(userDocs)+len(systemDocs))
	all = append(all, userDocs...)
	all = append(all, systemDocs...)

	eligibleUser := filterEligible(userDocs)
	Sort(eligibleUser)

	seen := make(map[string]bool, len(eligibleUser))
	for _, p := range eligibleUser {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		winners = append(winners, p)
	}

	eligibleSystem := filterEligible(systemDocs)
	Sort(eligibleSystem)
	for _, p := range eligibleSystem {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		winners = append(winners, p)
	}

	return winners, all
}

func filterEligible(docs []*catalog.Prompt) []*catalog.Prompt {
	out := make([]*catalog.Prompt, 0, len(docs))
	for _, d := range docs {
		if d.State.Eligible() {
			out = append(out, d)
		}
	}
	return out
}

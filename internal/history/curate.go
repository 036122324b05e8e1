// Package history implements the History Curator: a pure function that
// drops invalid runs of model turns and the user turn that triggered
// them, so the model never sees a turn shape it would reject.
//
// Grounded on the teacher's internal/agent/transcript_repair.go, which
// scans []*models.Message and rebuilds a repaired slice with the same
// left-to-right run-collection idiom; curation here targets the spec's
// model-turn-run semantics instead of that file's repair rules.
package history

import "github.com/nexuscore/agentcore/pkg/content"

// Curate scans comprehensive left-to-right, emitting every user/function
// turn as-is and collecting each maximal run of consecutive model turns.
// A run is emitted whole if every turn in it is a valid model turn
// (content.ValidModelTurn); otherwise the whole run is dropped along with
// the most recently emitted user turn, if any.
//
// Curate is idempotent: Curate(Curate(h)) == Curate(h), since every
// emitted run is already all-valid and every emitted user/function turn
// is passed through unchanged.
func Curate(comprehensive []content.Content) []content.Content {
	out := make([]content.Content, 0, len(comprehensive))
	lastUserIdx := -1 // index into out of the most recently emitted user turn

	i := 0
	for i < len(comprehensive) {
		turn := comprehensive[i]
		if turn.Role != content.RoleModel {
			out = append(out, turn)
			if turn.Role == content.RoleUser {
				lastUserIdx = len(out) - 1
			}
			i++
			continue
		}

		// Collect the maximal run of consecutive model turns.
		runStart := i
		for i < len(comprehensive) && comprehensive[i].Role == content.RoleModel {
			i++
		}
		run := comprehensive[runStart:i]

		if allValid(run) {
			out = append(out, run...)
			continue
		}

		// Drop the run and the most recent previously-emitted user turn.
		if lastUserIdx >= 0 {
			out = append(out[:lastUserIdx], out[lastUserIdx+1:]...)
			lastUserIdx = -1
			for j := len(out) - 1; j >= 0; j-- {
				if out[j].Role == content.RoleUser {
					lastUserIdx = j
					break
				}
			}
		}
	}

	return out
}

func allValid(run []content.Content) bool {
	for _, turn := range run {
		if !content.ValidModelTurn(turn.Parts) {
			return false
		}
	}
	return true
}

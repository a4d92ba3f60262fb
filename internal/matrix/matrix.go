// Package matrix caps prompt-set and model-config selections and expands
// them into the bounded list of combinations evaluated by a run.
package matrix

import "nlq_eval/internal/models"

// MaxCombinations is the ceiling on evaluated (prompt set, model config) pairs.
const MaxCombinations = 4

// CapFor returns how many entries one axis may hold given the size of the
// other axis. An empty other axis counts as one.
func CapFor(otherCount int) int {
	if otherCount < 1 {
		otherCount = 1
	}
	return MaxCombinations / otherCount
}

// Cap truncates selection to its first CapFor(otherCount) entries,
// preserving selection order. The input slice is not modified.
func Cap(selection []int64, otherCount int) []int64 {
	limit := CapFor(otherCount)
	if len(selection) <= limit {
		return append([]int64(nil), selection...)
	}
	return append([]int64(nil), selection[:limit]...)
}

// Combination is one (prompt set, model config) pair.
type Combination struct {
	PromptSet   models.PromptSet
	ModelConfig models.ModelConfig
}

// Expand builds combinations in selection order: prompt sets outer, model
// configs inner. Ids missing from the catalogs are skipped. The result holds
// at most MaxCombinations entries.
func Expand(promptSetIDs, modelConfigIDs []int64, promptSets []models.PromptSet, modelConfigs []models.ModelConfig) []Combination {
	psByID := make(map[int64]models.PromptSet, len(promptSets))
	for _, ps := range promptSets {
		if _, seen := psByID[ps.ID]; !seen {
			psByID[ps.ID] = ps
		}
	}
	mcByID := make(map[int64]models.ModelConfig, len(modelConfigs))
	for _, mc := range modelConfigs {
		if _, seen := mcByID[mc.ID]; !seen {
			mcByID[mc.ID] = mc
		}
	}

	combos := make([]Combination, 0, MaxCombinations)
	for _, psID := range promptSetIDs {
		ps, ok := psByID[psID]
		if !ok {
			continue
		}
		for _, mcID := range modelConfigIDs {
			mc, ok := mcByID[mcID]
			if !ok {
				continue
			}
			combos = append(combos, Combination{PromptSet: ps, ModelConfig: mc})
			if len(combos) == MaxCombinations {
				return combos
			}
		}
	}
	return combos
}

// Locked reports whether the combination count has reached the ceiling.
func Locked(combos []Combination) bool {
	return len(combos) >= MaxCombinations
}

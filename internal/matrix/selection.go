package matrix

import (
	"sync"

	"nlq_eval/internal/models"
)

// Selection tracks the selected prompt-set and model-config ids against a
// catalog and enforces the per-axis caps and the growth lock.
type Selection struct {
	mu           sync.RWMutex
	promptSets   []models.PromptSet
	modelConfigs []models.ModelConfig
	promptSetIDs []int64
	modelIDs     []int64
}

// NewSelection returns an empty selection over the given catalogs.
func NewSelection(promptSets []models.PromptSet, modelConfigs []models.ModelConfig) *Selection {
	return &Selection{
		promptSets:   promptSets,
		modelConfigs: modelConfigs,
	}
}

// SetCatalog replaces the catalogs. Selected ids are kept.
func (s *Selection) SetCatalog(promptSets []models.PromptSet, modelConfigs []models.ModelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptSets = promptSets
	s.modelConfigs = modelConfigs
}

// SetPromptSets applies a new prompt-set selection. While the combination
// count is at the ceiling a change that grows the axis is ignored. The
// accepted selection is capped against the current model-config count.
// Returns the selection now in effect.
func (s *Selection) SetPromptSets(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) > len(s.promptSetIDs) && s.lockedLocked() {
		return append([]int64(nil), s.promptSetIDs...)
	}
	s.promptSetIDs = Cap(ids, len(s.modelIDs))
	return append([]int64(nil), s.promptSetIDs...)
}

// SetModelConfigs is the model-config counterpart of SetPromptSets.
func (s *Selection) SetModelConfigs(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) > len(s.modelIDs) && s.lockedLocked() {
		return append([]int64(nil), s.modelIDs...)
	}
	s.modelIDs = Cap(ids, len(s.promptSetIDs))
	return append([]int64(nil), s.modelIDs...)
}

// PromptSetIDs returns the selected prompt-set ids in selection order.
func (s *Selection) PromptSetIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.promptSetIDs...)
}

// ModelConfigIDs returns the selected model-config ids in selection order.
func (s *Selection) ModelConfigIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.modelIDs...)
}

// Combinations expands the current selection.
func (s *Selection) Combinations() []Combination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Expand(s.promptSetIDs, s.modelIDs, s.promptSets, s.modelConfigs)
}

// Locked reports whether further growth of either axis is disabled.
func (s *Selection) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lockedLocked()
}

// Empty reports whether either axis has nothing selected.
func (s *Selection) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.promptSetIDs) == 0 || len(s.modelIDs) == 0
}

func (s *Selection) lockedLocked() bool {
	return Locked(Expand(s.promptSetIDs, s.modelIDs, s.promptSets, s.modelConfigs))
}

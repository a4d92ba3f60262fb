// Package feedback maps run results onto the evaluated combinations, picks the
// baseline and keeps per-result feedback drafts in sync with the server
// without losing unsaved edits.
package feedback

import (
	"nlq_eval/internal/matrix"
	"nlq_eval/internal/models"
)

// Match pairs a combination with its generated result. Result is nil when
// the run produced nothing for the pair.
type Match struct {
	Combination matrix.Combination
	Result      *models.GeneratedResult
}

// Anomaly records several results answering the same combination.
type Anomaly struct {
	PromptSetID   int64
	ModelConfigID int64
	ResultIDs     []int64
}

// MatchResults finds each combination's result by exact prompt set and model
// config id. The first result in server order wins; extra ones are reported
// as anomalies.
func MatchResults(combos []matrix.Combination, results []models.GeneratedResult) ([]Match, []Anomaly) {
	type key struct{ ps, mc int64 }

	first := make(map[key]int, len(results))
	dupes := make(map[key][]int64)
	for i, r := range results {
		k := key{r.PromptSetID, r.ModelConfigID}
		if idx, ok := first[k]; ok {
			if len(dupes[k]) == 0 {
				dupes[k] = append(dupes[k], results[idx].ID)
			}
			dupes[k] = append(dupes[k], r.ID)
			continue
		}
		first[k] = i
	}

	matches := make([]Match, len(combos))
	var anomalies []Anomaly
	for i, c := range combos {
		k := key{c.PromptSet.ID, c.ModelConfig.ID}
		matches[i].Combination = c
		if idx, ok := first[k]; ok {
			r := results[idx]
			matches[i].Result = &r
		}
		if ids, ok := dupes[k]; ok {
			anomalies = append(anomalies, Anomaly{PromptSetID: k.ps, ModelConfigID: k.mc, ResultIDs: ids})
		}
	}
	return matches, anomalies
}

// Baseline is the result shown as ground truth. Explicit is false when no
// result carries the server-side flag and the first result stands in for
// display only.
type Baseline struct {
	Result   *models.GeneratedResult
	Explicit bool
}

// ID returns the baseline result id, or 0 when there is none.
func (b Baseline) ID() int64 {
	if b.Result == nil {
		return 0
	}
	return b.Result.ID
}

// ResolveBaseline returns the first flagged result, else the first result.
func ResolveBaseline(results []models.GeneratedResult) Baseline {
	for _, r := range results {
		if r.IsBaseline {
			return Baseline{Result: &r, Explicit: true}
		}
	}
	if len(results) > 0 {
		r := results[0]
		return Baseline{Result: &r}
	}
	return Baseline{}
}

// Draft is locally held feedback for one result.
type Draft struct {
	ResultID int64
	Tag      string
	Comment  string

	// Last values confirmed by the server.
	ServerTag     string
	ServerComment string

	Saving    bool
	JustSaved bool
	Err       string

	savedToken uint64
}

// Dirty reports whether the draft holds edits the server has not confirmed.
func (d Draft) Dirty() bool {
	return d.Saving || d.Tag != d.ServerTag || d.Comment != d.ServerComment
}

// CanSave reports whether a save may be issued.
func (d Draft) CanSave() bool {
	return !d.Saving && (d.Tag != "" || d.Comment != "")
}

func seedDraft(r models.GeneratedResult) Draft {
	return Draft{
		ResultID:      r.ID,
		Tag:           r.HumanEvaluationTag,
		Comment:       r.Comments,
		ServerTag:     r.HumanEvaluationTag,
		ServerComment: r.Comments,
	}
}

// SyncDrafts returns the drafts for results. Dirty drafts are kept as they
// are; clean or missing ones are seeded from the server values. Drafts for
// results no longer present are dropped. prev is not modified.
func SyncDrafts(prev map[int64]Draft, results []models.GeneratedResult) map[int64]Draft {
	next := make(map[int64]Draft, len(results))
	for _, r := range results {
		if _, done := next[r.ID]; done {
			continue
		}
		old, ok := prev[r.ID]
		if ok && old.Dirty() {
			next[r.ID] = old
			continue
		}
		d := seedDraft(r)
		if ok {
			d.JustSaved = old.JustSaved
			d.savedToken = old.savedToken
		}
		next[r.ID] = d
	}
	return next
}

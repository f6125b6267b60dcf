// Package importance ranks features by a fitted model's own importance signal.
package importance

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Entry is one ranked feature.
type Entry struct {
	Feature string  `json:"feature"`
	Index   int     `json:"index"`
	Score   float64 `json:"score"`
}

// Record is a list of entries sorted by descending score. Ties keep the
// original feature order.
type Record struct {
	Source  model.ImportanceSource `json:"source,omitempty"`
	Entries []Entry                `json:"entries"`
}

// Extract ranks the model's importance vector against names. ok is false when
// the model exposes no importance signal; that is not an error.
func Extract(m model.Regressor, names []string) (rec Record, ok bool, err error) {
	scores, source, ok := m.FeatureImportances()
	if !ok {
		return Record{}, false, nil
	}
	rec, err = Rank(names, scores)
	if err != nil {
		return Record{}, false, err
	}
	rec.Source = source
	return rec, true, nil
}

// Rank pairs names with scores and sorts them by descending score, stably.
func Rank(names []string, scores []float64) (Record, error) {
	if len(names) != len(scores) {
		return Record{}, errors.NewDimensionMismatchError("importance.Rank", len(names), len(scores))
	}
	if err := errors.CheckNumericalStability("importance.Rank", scores); err != nil {
		return Record{}, err
	}
	entries := make([]Entry, len(names))
	for i := range names {
		entries[i] = Entry{Feature: names[i], Index: i, Score: scores[i]}
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Score > entries[b].Score })
	return Record{Entries: entries}, nil
}

// Top returns at most n leading entries.
func (r Record) Top(n int) []Entry {
	if n <= 0 || n >= len(r.Entries) {
		return r.Entries
	}
	return r.Entries[:n]
}

// WriteCSV writes the record as a two-column table with header Feature,Importance.
func (r Record) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Feature", "Importance"}); err != nil {
		return err
	}
	for _, e := range r.Entries {
		if err := cw.Write([]string{e.Feature, strconv.FormatFloat(e.Score, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

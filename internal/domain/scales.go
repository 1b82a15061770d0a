// Package domain – fatigue scale records and scoring arithmetic.
//
// Two standardized questionnaires are persisted: the Fatigue Severity Scale
// (FSS, nine items scored 1-7) and the FACIT-Fatigue scale (thirteen items
// scored 0-4, with two reverse-keyed items). Totals and interpretation labels
// are derived here and never accepted from the caller.
package domain

// ScaleType discriminates the two supported questionnaires.
type ScaleType string

const (
	ScaleFSS    ScaleType = "FSS"
	ScaleFACITF ScaleType = "FACIT-F"
)

const (
	fssItems    = 9
	facitfItems = 13
)

// facitfReverseItems are the zero-based positions of the reverse-keyed
// FACIT-F items: their raw score counts directly toward the total, while all
// other items contribute (4 - score).
var facitfReverseItems = map[int]bool{7: true, 8: true}

// FatigueScale is one submitted questionnaire. At most one scale of a given
// type per user per day is a caller-level policy, not a storage invariant.
type FatigueScale struct {
	ID             string    `json:"id"`
	Date           string    `json:"date"`
	Type           ScaleType `json:"type"`
	Scores         []int     `json:"scores"`
	TotalScore     float64   `json:"totalScore"`
	Interpretation string    `json:"interpretation"`
}

// Validate checks id, date, item count, and per-item score range for the
// scale type, then recomputes the derived total and interpretation.
func (f *FatigueScale) Validate() error {
	if f.ID == "" {
		return validationf("fatigue scale id is empty")
	}
	if _, err := parseDate(f.Date); err != nil {
		return validationf("fatigue scale date %q is not YYYY-MM-DD", f.Date)
	}
	switch f.Type {
	case ScaleFSS:
		if len(f.Scores) != fssItems {
			return validationf("FSS needs %d scores, got %d", fssItems, len(f.Scores))
		}
		for _, s := range f.Scores {
			if s < 1 || s > 7 {
				return validationf("FSS score %d out of range [1,7]", s)
			}
		}
	case ScaleFACITF:
		if len(f.Scores) != facitfItems {
			return validationf("FACIT-F needs %d scores, got %d", facitfItems, len(f.Scores))
		}
		for _, s := range f.Scores {
			if s < 0 || s > 4 {
				return validationf("FACIT-F score %d out of range [0,4]", s)
			}
		}
	default:
		return validationf("unknown scale type %q", f.Type)
	}
	f.Derive()
	return nil
}

// Derive recomputes TotalScore and Interpretation from the raw item scores.
func (f *FatigueScale) Derive() {
	switch f.Type {
	case ScaleFSS:
		f.TotalScore = fssTotal(f.Scores)
		f.Interpretation = fssInterpretation(f.TotalScore)
	case ScaleFACITF:
		f.TotalScore = facitfTotal(f.Scores)
		f.Interpretation = facitfInterpretation(f.TotalScore)
	}
}

// fssTotal is the mean of the nine item scores, range [1,7].
func fssTotal(scores []int) float64 {
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

func fssInterpretation(total float64) string {
	switch {
	case total < 4:
		return "No significant fatigue"
	case total < 5:
		return "Moderate fatigue"
	default:
		return "Severe fatigue"
	}
}

// facitfTotal sums reverse-keyed items directly and all other items as
// (4 - score), range [0,52]. Higher totals mean less fatigue.
func facitfTotal(scores []int) float64 {
	sum := 0
	for i, s := range scores {
		if facitfReverseItems[i] {
			sum += s
		} else {
			sum += 4 - s
		}
	}
	return float64(sum)
}

func facitfInterpretation(total float64) string {
	switch {
	case total >= 40:
		return "Minimal fatigue"
	case total >= 30:
		return "Mild fatigue"
	case total >= 20:
		return "Moderate fatigue"
	default:
		return "Severe fatigue"
	}
}

// Package domain defines the persisted record types of the health journal:
// daily assessments, standardized fatigue scales, and exercise sessions.
// These types are shared across the repository, cache, and service layers,
// and are validated at the storage boundary rather than trusted implicitly.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// RecordKind identifies one of the three persisted record families.
type RecordKind string

const (
	KindAssessment      RecordKind = "assessment"
	KindFatigueScale    RecordKind = "fatigue_scale"
	KindExerciseSession RecordKind = "exercise_session"
)

// ParseRecordKind validates a kind string coming from an external caller.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case KindAssessment, KindFatigueScale, KindExerciseSession:
		return RecordKind(s), nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// IndexName returns the name of the per-user secondary index list for the kind,
// e.g. "assessments" for KindAssessment.
func (k RecordKind) IndexName() string {
	return string(k) + "s"
}

// DateLayout is the calendar-date format used as the primary key of daily
// assessments and as the date field of every record.
const DateLayout = "2006-01-02"

// ErrValidation wraps all record validation failures so callers can
// distinguish bad input from storage errors with errors.Is.
var ErrValidation = errors.New("invalid record")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// MorningAssessment holds the five subjective 1-10 morning ratings and the
// readiness score derived from them. The score is always recomputed from the
// ratings; a client-supplied value is overwritten on save.
type MorningAssessment struct {
	SleepQuality           int `json:"sleepQuality"`
	EnergyWaking           int `json:"energyWaking"`
	MentalClarity          int `json:"mentalClarity"`
	PhysicalReadiness      int `json:"physicalReadiness"`
	Motivation             int `json:"motivation"`
	ExerciseReadinessScore int `json:"exerciseReadinessScore"`
}

// Ratings returns the five sub-ratings in a fixed order.
func (m *MorningAssessment) Ratings() [5]int {
	return [5]int{m.SleepQuality, m.EnergyWaking, m.MentalClarity, m.PhysicalReadiness, m.Motivation}
}

// DeriveReadiness recomputes ExerciseReadinessScore as the sum of the five
// ratings. The result is always in [5,50] for valid input.
func (m *MorningAssessment) DeriveReadiness() {
	sum := 0
	for _, r := range m.Ratings() {
		sum += r
	}
	m.ExerciseReadinessScore = sum
}

// Validate checks that every rating lies in [1,10].
func (m *MorningAssessment) Validate() error {
	for _, r := range m.Ratings() {
		if r < 1 || r > 10 {
			return validationf("morning rating %d out of range [1,10]", r)
		}
	}
	return nil
}

// MedicalData holds optional lab readings attached to an assessment.
type MedicalData struct {
	Hemoglobin       *float64 `json:"hemoglobin,omitempty"`
	Hematocrit       *float64 `json:"hematocrit,omitempty"`
	BloodPressureSys *int     `json:"bloodPressureSys,omitempty"`
	BloodPressureDia *int     `json:"bloodPressureDia,omitempty"`
	Date             string   `json:"date"`
}

// ExerciseType names an entry from the static exercise library.
type ExerciseType struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// PreExercise captures the state recorded before an exercise session starts.
type PreExercise struct {
	Time        string `json:"time"`
	LastMeal    int    `json:"lastMeal"`
	Hydration   int    `json:"hydration"`
	BaselineRPE int    `json:"baselineRPE"`
}

// ExertionCheck is a single mid-session exertion reading.
type ExertionCheck struct {
	Time     string   `json:"time"`
	RPE      int      `json:"rpe"`
	TalkTest bool     `json:"talkTest"`
	Symptoms []string `json:"symptoms,omitempty"`
}

// PostExercise captures the readings taken after a session ends.
type PostExercise struct {
	ImmediateRPE  int  `json:"immediateRPE"`
	Recovery30Min *int `json:"recovery30min,omitempty"`
	Recovery2Hr   *int `json:"recovery2hr,omitempty"`
	Satisfaction  int  `json:"satisfaction"`
}

// SessionDetail groups the structured sub-phases of an exercise session.
type SessionDetail struct {
	PreExercise    *PreExercise    `json:"preExercise,omitempty"`
	DuringExercise []ExertionCheck `json:"duringExercise,omitempty"`
	PostExercise   *PostExercise   `json:"postExercise,omitempty"`
}

// EmbeddedSession is the optional exercise summary embedded in a daily
// assessment, distinct from the standalone ExerciseSession record.
type EmbeddedSession struct {
	ExerciseType *ExerciseType `json:"exerciseType,omitempty"`
	SessionDetail
}

// DailyAssessment is the at-most-one-per-day journal record, keyed by
// (userID, date). Saves merge into any existing record for the same date.
type DailyAssessment struct {
	Date            string             `json:"date"`
	Morning         *MorningAssessment `json:"morningAssessment,omitempty"`
	ExerciseSession *EmbeddedSession   `json:"exerciseSession,omitempty"`
	DailyNotes      string             `json:"dailyNotes,omitempty"`
	Symptoms        []string           `json:"symptoms,omitempty"`
	MedicalData     *MedicalData       `json:"medicalData,omitempty"`
}

// Validate checks the date key and any morning sub-record, and recomputes
// the derived readiness score so a tampered value can never be persisted.
func (a *DailyAssessment) Validate() error {
	if _, err := parseDate(a.Date); err != nil {
		return validationf("assessment date %q is not YYYY-MM-DD", a.Date)
	}
	if a.Morning != nil {
		if err := a.Morning.Validate(); err != nil {
			return err
		}
		a.Morning.DeriveReadiness()
	}
	return nil
}

// Merge folds the non-empty fields of in into a, implementing the
// later-writes-merge upsert semantics of daily assessments.
func (a *DailyAssessment) Merge(in *DailyAssessment) {
	if in.Morning != nil {
		a.Morning = in.Morning
	}
	if in.ExerciseSession != nil {
		a.ExerciseSession = in.ExerciseSession
	}
	if in.DailyNotes != "" {
		a.DailyNotes = in.DailyNotes
	}
	if len(in.Symptoms) > 0 {
		a.Symptoms = in.Symptoms
	}
	if in.MedicalData != nil {
		a.MedicalData = in.MedicalData
	}
}

// ExerciseSession is a standalone record of one workout, append-only from the
// store's point of view.
type ExerciseSession struct {
	ID       string        `json:"id"`
	Date     string        `json:"date"`
	Exercise string        `json:"exercise"`
	Duration int           `json:"duration"` // minutes
	Session  SessionDetail `json:"session"`
}

// Validate checks the session key fields and date format.
func (s *ExerciseSession) Validate() error {
	if s.ID == "" {
		return validationf("exercise session id is empty")
	}
	if _, err := parseDate(s.Date); err != nil {
		return validationf("exercise session date %q is not YYYY-MM-DD", s.Date)
	}
	if s.Duration < 0 {
		return validationf("exercise session duration %d is negative", s.Duration)
	}
	return nil
}

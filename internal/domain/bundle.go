package domain

import "time"

// HealthBundle is the serialized export of a user's three record lists,
// and the accepted shape for bulk import.
type HealthBundle struct {
	Assessments      []DailyAssessment `json:"assessments"`
	FatigueScales    []FatigueScale    `json:"fatigueScales"`
	ExerciseSessions []ExerciseSession `json:"exerciseSessions"`
	ExportDate       time.Time         `json:"exportDate,omitempty"`
	Username         string            `json:"user,omitempty"`
}

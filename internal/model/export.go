package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID      string          `json:"exam_id"`
	Title       string          `json:"title"`
	ExportedAt  time.Time       `json:"exported_at"`
	NumItems    int             `json:"num_items"`
	TotalPoints int             `json:"total_points"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one student's attempt data for export.
type StudentResult struct {
	Username      string       `json:"username"`
	DisplayName   string       `json:"display_name"`
	AttemptNumber int          `json:"attempt_number"`
	StartedAt     time.Time    `json:"started_at"`
	SubmittedAt   *time.Time   `json:"submitted_at,omitempty"`
	Items         []ItemResult `json:"items"`
	Score         float64      `json:"score"`
	FullyGraded   bool         `json:"fully_graded"`
}

// ItemResult holds per-item data for export.
type ItemResult struct {
	ItemID        string   `json:"item_id"`
	Type          ItemType `json:"type"`
	Question      string   `json:"question"`
	Points        int      `json:"points"`
	Answer        any      `json:"answer,omitempty"`
	Answered      bool     `json:"answered"`
	PointsAwarded *float64 `json:"points_awarded,omitempty"`
}

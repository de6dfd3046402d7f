package models

import (
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

// Grade scale bounds, inclusive.
const (
	MinGradeValue = 0.0
	MaxGradeValue = 20.0
	// PassingGrade is the lowest average that still passes a course.
	PassingGrade = 11.0
)

// EvaluationType classifies the assessment a grade was recorded for.
type EvaluationType string

const (
	EvaluationPartial  EvaluationType = "PARCIAL"
	EvaluationFinal    EvaluationType = "FINAL"
	EvaluationHomework EvaluationType = "TAREA"
	EvaluationPractice EvaluationType = "PRACTICA"
	EvaluationExam     EvaluationType = "EXAMEN"
)

// EvaluationTypes lists every evaluation type in display order.
func EvaluationTypes() []EvaluationType {
	return []EvaluationType{EvaluationPartial, EvaluationFinal, EvaluationHomework, EvaluationPractice, EvaluationExam}
}

// ParseEvaluationType converts free text into an EvaluationType.
func ParseEvaluationType(raw string) (EvaluationType, error) {
	candidate := EvaluationType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, t := range EvaluationTypes() {
		if t == candidate {
			return t, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInvalidEnum, fmt.Sprintf("unknown evaluation type %q", raw))
}

// AcademicStatus is the standing derived from an average.
type AcademicStatus string

const (
	StatusExcellent AcademicStatus = "EXCELENTE"
	StatusVeryGood  AcademicStatus = "MUY BUENO"
	StatusGood      AcademicStatus = "BUENO"
	StatusFair      AcademicStatus = "REGULAR"
	StatusFailed    AcademicStatus = "DESAPROBADO"
)

// Grade is one scored evaluation of a student in a course. RecordedAt is
// stamped on creation and never changes afterwards.
type Grade struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	CourseID       string         `db:"course_id" json:"course_id"`
	Value          float64        `db:"value" json:"value"`
	EvaluationType EvaluationType `db:"evaluation_type" json:"evaluation_type"`
	Observations   *string        `db:"observations" json:"observations,omitempty"`
	RecordedAt     time.Time      `db:"recorded_at" json:"recorded_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// GradeDetail joins student and course labels onto a grade.
type GradeDetail struct {
	Grade
	StudentCode string `db:"student_code" json:"student_code"`
	StudentName string `db:"student_name" json:"student_name"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID      string
	CourseID       string
	EvaluationType *EvaluationType
	MinValue       *float64
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// GradeScope narrows an aggregate to a student, a course, or both. Empty
// fields are not constrained.
type GradeScope struct {
	StudentID string
	CourseID  string
}

// GradeAggregate is the raw material for an average.
type GradeAggregate struct {
	Count int     `db:"count"`
	Sum   float64 `db:"sum"`
}

// EvaluationTypeCount is the number of grades recorded for an evaluation type.
type EvaluationTypeCount struct {
	EvaluationType EvaluationType `db:"evaluation_type" json:"evaluation_type"`
	Total          int            `db:"total" json:"total"`
}

// StudentCourseAverage is a per-student average inside one course.
type StudentCourseAverage struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	StudentCode string  `db:"student_code" json:"student_code"`
	StudentName string  `db:"student_name" json:"student_name"`
	Count       int     `db:"count" json:"count"`
	Sum         float64 `db:"sum" json:"-"`
}

// ClassifyAverage maps an average onto its academic status. Each band
// includes its lower bound.
func ClassifyAverage(average float64) AcademicStatus {
	switch {
	case average >= 18:
		return StatusExcellent
	case average >= 16:
		return StatusVeryGood
	case average >= 14:
		return StatusGood
	case average >= PassingGrade:
		return StatusFair
	default:
		return StatusFailed
	}
}

// Passes reports whether average is enough to pass a course.
func Passes(average float64) bool {
	return average >= PassingGrade
}

// StudentStanding is a student's result inside one course.
type StudentStanding struct {
	StudentID   string         `json:"student_id"`
	StudentCode string         `json:"student_code,omitempty"`
	StudentName string         `json:"student_name,omitempty"`
	CourseID    string         `json:"course_id"`
	Average     float64        `json:"average"`
	GradeCount  int            `json:"grade_count"`
	Status      AcademicStatus `json:"status"`
	Passed      bool           `json:"passed"`
}

// CourseGradeSummary aggregates every grade recorded for a course.
type CourseGradeSummary struct {
	CourseID     string            `json:"course_id"`
	CourseCode   string            `json:"course_code"`
	CourseName   string            `json:"course_name"`
	Average      float64           `json:"average"`
	GradeCount   int               `json:"grade_count"`
	StudentCount int               `json:"student_count"`
	PassedCount  int               `json:"passed_count"`
	FailedCount  int               `json:"failed_count"`
	Students     []StudentStanding `json:"students"`
	TopGrades    []GradeDetail     `json:"top_grades"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

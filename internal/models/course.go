package models

import "time"

// DefaultCourseCredits applies when a course is created without credits.
const DefaultCourseCredits = 3

// Course is a subject offering. Courses are soft-deleted through Active.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Credits     int       `db:"credits" json:"credits"`
	Active      bool      `db:"active" json:"active"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail joins the assigned teacher name.
type CourseDetail struct {
	Course
	TeacherCode *string `db:"teacher_code" json:"teacher_code,omitempty"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
}

// CourseFilter captures filtering options for listing courses.
type CourseFilter struct {
	Search     string
	Active     *bool
	TeacherID  string
	Credits    *int
	MinCredits *int
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// TeacherCourseCount is the number of courses assigned to a teacher.
type TeacherCourseCount struct {
	TeacherID   string `db:"teacher_id" json:"teacher_id"`
	TeacherCode string `db:"teacher_code" json:"teacher_code"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	Total       int    `db:"total" json:"total"`
}

package models

import "time"

// Teacher is an instructor profile, optionally bound to one login account.
type Teacher struct {
	ID         string     `db:"id" json:"id"`
	Code       string     `db:"code" json:"code"`
	FirstNames string     `db:"first_names" json:"first_names"`
	LastNames  string     `db:"last_names" json:"last_names"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Specialty  *string    `db:"specialty" json:"specialty,omitempty"`
	Address    *string    `db:"address" json:"address,omitempty"`
	District   *string    `db:"district" json:"district,omitempty"`
	Photo      *string    `db:"photo" json:"photo,omitempty"`
	HireDate   *time.Time `db:"hire_date" json:"hire_date,omitempty"`
	AccountID  *string    `db:"account_id" json:"account_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName renders "last names, first names".
func (t Teacher) FullName() string {
	return joinName(t.FirstNames, t.LastNames)
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Specialty string
	District  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SpecialtyCount is the number of teachers sharing a specialty.
type SpecialtyCount struct {
	Specialty string `db:"specialty" json:"specialty"`
	Total     int    `db:"total" json:"total"`
}

package models

import (
	"strings"
	"time"
)

// Student is a learner profile, optionally bound to one login account.
type Student struct {
	ID         string     `db:"id" json:"id"`
	Code       string     `db:"code" json:"code"`
	FirstNames string     `db:"first_names" json:"first_names"`
	LastNames  string     `db:"last_names" json:"last_names"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Address    *string    `db:"address" json:"address,omitempty"`
	District   *string    `db:"district" json:"district,omitempty"`
	Photo      *string    `db:"photo" json:"photo,omitempty"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	AccountID  *string    `db:"account_id" json:"account_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName renders "last names, first names".
func (s Student) FullName() string {
	return joinName(s.FirstNames, s.LastNames)
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	District  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// DistrictCount is the number of students living in a district.
type DistrictCount struct {
	District string `db:"district" json:"district"`
	Total    int    `db:"total" json:"total"`
}

func joinName(first, last string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	switch {
	case last == "":
		return first
	case first == "":
		return last
	}
	return last + ", " + first
}

package models

import "time"

// UserType enumerates the kinds of user the scheduler reasons about.
type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeTeacher UserType = "teacher"
	UserTypeAdmin   UserType = "admin"
)

// User is a person referenced by the timetable: a student, a teacher, or an
// administrator with no scheduling role. Students carry YearGroup; teachers
// and admins leave it nil. Title is the honorific used on a teacher's name
// (e.g. "Mrs", "Dr"); students leave it nil.
type User struct {
	ID        string    `db:"id" json:"id"`
	UserType  UserType  `db:"user_type" json:"user_type"`
	YearGroup *int      `db:"year_group" json:"year_group,omitempty"`
	Title     *string   `db:"title" json:"title,omitempty"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	UserType  *UserType
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned by list queries.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

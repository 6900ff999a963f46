package models

// Link binds a user to a group in the context of one subject. It is the
// many-to-many join that derives both group membership and a group's
// teacher: the unique linked user of type teacher is the group's teacher.
type Link struct {
	UserID    string `db:"user_id" json:"user_id"`
	GroupID   string `db:"group_id" json:"group_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
}

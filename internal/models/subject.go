package models

// Subject is a named academic subject, e.g. "Mathematics" / "MATH".
type Subject struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Abbreviation string `db:"abbreviation" json:"abbreviation"`
}

package models

import "time"

// Degree levels of a thesis project.
const (
	DegreeUndergraduate = "undergraduate"
	DegreePostgraduate  = "postgraduate"
	DegreeMasters       = "masters"
)

// ThesisProject is a student thesis with an optional document.
type ThesisProject struct {
	ID          string `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Student1    string `db:"student1" json:"student1"`
	Student2    string `db:"student2" json:"student2"`
	DegreeLevel string `db:"degree_level" json:"degreeLevel"`
	Advisor     string `db:"advisor" json:"advisor"`
	CoAdvisor   string `db:"co_advisor" json:"coAdvisor"`
	Career      string `db:"career" json:"career"`
	Year        int    `db:"year" json:"year"`
	Semester    string `db:"semester" json:"semester"`
	Abstract    string `db:"abstract" json:"abstract"`
	Keywords    string `db:"keywords" json:"keywords"`
	Attachment
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ThesisProjectFilter narrows thesis listings.
type ThesisProjectFilter struct {
	Year        *int
	Career      string
	Semester    string
	DegreeLevel string
}

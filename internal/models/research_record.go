package models

import "time"

// ResearchRecord is a published research entry with an optional document.
type ResearchRecord struct {
	ID          string `db:"id" json:"id"`
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	CoAuthor    string `db:"co_author" json:"coAuthor"`
	Year        int    `db:"year" json:"year"`
	Description string `db:"description" json:"description"`
	Attachment
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ResearchRecordFilter narrows research listings.
type ResearchRecordFilter struct {
	Year   *int
	Author string
}

package models

import "time"

// Shared archive categories.
const (
	CategoryPersonal = "personal"
	CategoryResearch = "research"
)

// SharedArchive is an uploaded document that may be published to every user.
type SharedArchive struct {
	ID      string `db:"id" json:"id"`
	OwnerID string `db:"owner_id" json:"ownerId"`
	StoredFile
	Folder           string    `db:"folder" json:"folder"`
	Category         string    `db:"category" json:"category"`
	IsPublic         bool      `db:"is_public" json:"isPublic"`
	Description      string    `db:"description" json:"description"`
	Version          string    `db:"version" json:"version"`
	Author           string    `db:"author" json:"author"`
	Tags             string    `db:"tags" json:"tags"`
	ResearchRecordID *string   `db:"research_record_id" json:"researchRecordId"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// SharedArchiveFilter narrows shared archive listings. VisibleTo, when set,
// restricts results to public rows and rows owned by that user.
type SharedArchiveFilter struct {
	Category         string
	Folder           string
	ResearchRecordID string
	VisibleTo        string
}

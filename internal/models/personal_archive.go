package models

import "time"

// PersonalArchive is a private file kept by a faculty member.
type PersonalArchive struct {
	ID      string `db:"id" json:"id"`
	OwnerID string `db:"owner_id" json:"ownerId"`
	StoredFile
	Description string    `db:"description" json:"description"`
	Folder      string    `db:"folder" json:"folder"`
	Tags        string    `db:"tags" json:"tags"`
	Favorite    bool      `db:"favorite" json:"favorite"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// PersonalArchiveFilter narrows personal archive listings. Tags is matched
// as a case-insensitive substring after the rows are fetched.
type PersonalArchiveFilter struct {
	OwnerID  string
	Folder   string
	Favorite *bool
	Tags     string
}

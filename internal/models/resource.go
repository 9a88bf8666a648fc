package models

// ResourceKind names one of the owned, optionally file backed record types.
type ResourceKind string

const (
	KindSharedArchive   ResourceKind = "shared-archive"
	KindPersonalArchive ResourceKind = "personal-archive"
	KindResearchRecord  ResourceKind = "research-record"
	KindThesisProject   ResourceKind = "thesis-project"
	KindIdentity        ResourceKind = "identity"
	KindAlgorithm       ResourceKind = "algorithm"
	KindStorage         ResourceKind = "storage"
)

// Dir is the top level storage directory for files of this kind.
func (k ResourceKind) Dir() string {
	return string(k) + "s"
}

// DefaultFolder is assigned to archives created without a folder.
const DefaultFolder = "General"

// StoredFile is the metadata of a file that always exists for its record.
type StoredFile struct {
	StoredName   string `db:"stored_name" json:"-"`
	OriginalName string `db:"original_name" json:"originalName"`
	Path         string `db:"path" json:"-"`
	Size         int64  `db:"size" json:"size"`
	MimeType     string `db:"mime_type" json:"mimeType"`
}

// Attachment is the flattened, optional file of a record. Either every field
// is set or none is.
type Attachment struct {
	FileStoredName   *string `db:"file_stored_name" json:"-"`
	FileOriginalName *string `db:"file_original_name" json:"fileOriginalName"`
	FilePath         *string `db:"file_path" json:"-"`
	FileSize         *int64  `db:"file_size" json:"fileSize"`
	FileMimeType     *string `db:"file_mime_type" json:"fileMimeType"`
}

// AttachmentOf flattens a stored file; nil yields an empty attachment.
func AttachmentOf(f *StoredFile) Attachment {
	if f == nil {
		return Attachment{}
	}
	stored, original, path, mime, size := f.StoredName, f.OriginalName, f.Path, f.MimeType, f.Size
	return Attachment{
		FileStoredName:   &stored,
		FileOriginalName: &original,
		FilePath:         &path,
		FileSize:         &size,
		FileMimeType:     &mime,
	}
}

// File returns the attachment as a stored file, or nil when any part is missing.
func (a Attachment) File() *StoredFile {
	if a.FileStoredName == nil || a.FileOriginalName == nil || a.FilePath == nil || a.FileSize == nil || a.FileMimeType == nil {
		return nil
	}
	return &StoredFile{
		StoredName:   *a.FileStoredName,
		OriginalName: *a.FileOriginalName,
		Path:         *a.FilePath,
		Size:         *a.FileSize,
		MimeType:     *a.FileMimeType,
	}
}

// FileDownload is what the transport needs to stream a file back.
type FileDownload struct {
	Path         string
	OriginalName string
	MimeType     string
}

// FolderSummary counts personal archives per folder.
type FolderSummary struct {
	Folder string `db:"folder" json:"folder"`
	Count  int    `db:"count" json:"count"`
}

package models

import "time"

// UploadRecord is the Firestore audit entry written for every finalized upload.
type UploadRecord struct {
	Bucket      string    `firestore:"bucket,omitempty"`
	Pathname    string    `firestore:"pathname,omitempty"`
	Folder      string    `firestore:"folder,omitempty"`
	JobID       string    `firestore:"jobId,omitempty"`
	FileHash    string    `firestore:"fileHash,omitempty"`
	Size        int64     `firestore:"size,omitempty"`
	ContentType string    `firestore:"contentType,omitempty"`
	Pages       int       `firestore:"pages,omitempty"`
	DuplicateOf string    `firestore:"duplicateOf,omitempty"` // Pathname of an earlier identical upload
	Status      string    `firestore:"status,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt,omitempty"`
}

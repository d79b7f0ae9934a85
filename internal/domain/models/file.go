package models

import "time"

// File is the metadata of one stored blob owned by a user.
// Path points at the blob on the local disk.
type File struct {
	ID         int64
	Name       string
	Extension  string
	MimeType   string
	Size       int64
	Path       string
	UserID     int64
	UploadedAt time.Time
}

// FileList is one page of a user's files plus the total count.
type FileList struct {
	Items []*File
	Total int64
}

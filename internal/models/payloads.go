package models

import (
	"encoding/json"
	"time"
)

// These structs define the JSON payloads exchanged between the portal client and the
// store, upload, delete, files and OCR functions.

// StoreGetResponse is returned by GET /store. Data is null when the key was never written
// or the backing blob could not be read.
type StoreGetResponse struct {
	Data json.RawMessage `json:"data"`
	URL  *string         `json:"url"`
}

// StorePutRequest is the body of POST /store. Action "list" turns the call into a listing.
type StorePutRequest struct {
	Key    string          `json:"key,omitempty"`
	Action string          `json:"action,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// StorePutResponse is returned after a document has been overwritten.
type StorePutResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// BlobFile is the metadata of one stored object.
type BlobFile struct {
	URL        string    `json:"url"`
	Pathname   string    `json:"pathname"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ListFilesResponse is returned by GET /files and the store list action.
type ListFilesResponse struct {
	Files []BlobFile `json:"files"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// DeleteFileRequest is the body of POST /delete.
type DeleteFileRequest struct {
	URL string `json:"url"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// OCRRequest is the body of POST /ocr. APIKey overrides the server key when set.
type OCRRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
	APIKey      string `json:"apiKey,omitempty"`
}

// OCRResponse carries the extracted text.
type OCRResponse struct {
	Text string `json:"text"`
}

// PageCountResponse is returned by POST /pdf/pagecount.
type PageCountResponse struct {
	Pages int `json:"pages"`
}

// SheetBulkAddRequest is pushed to the spreadsheet web app.
type SheetBulkAddRequest struct {
	Action string     `json:"action"`
	Data   []JobEntry `json:"data"`
}

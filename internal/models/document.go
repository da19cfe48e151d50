package models

// UploadedDocument represents one ingested file. Payload is the base64 encoding of the file bytes.
type UploadedDocument struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Payload  string `json:"-"`
	Size     int64  `json:"size"`
}

package domain

// RawDocument is file content before text extraction.
type RawDocument struct {
	// URI is the original location (file path or "-" for stdin).
	URI string

	// MIMEType selects the normaliser (e.g., "text/markdown").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata is caller-supplied and copied onto the normalised document.
	Metadata Metadata
}

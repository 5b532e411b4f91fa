package domain

// RawDocument represents opaque bytes read from a local file.
// It is the input to normalisation.
type RawDocument struct {
	// Path is the file location the bytes were read from.
	Path string

	// MIMEType is the content type (e.g., "text/markdown").
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}

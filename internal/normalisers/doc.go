// Package normalisers turns raw file bytes into the text that is addressed,
// chunked and cited. The Registry picks a normaliser by MIME type, detected
// from the file extension when the caller gives none; subpackages hold the
// plaintext, markdown and html implementations.
//
// Output must depend only on the input bytes: the doc id is a hash of it.
package normalisers

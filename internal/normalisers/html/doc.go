// Package html provides a Normaliser for HTML documents. It walks the
// parsed node tree and keeps the readable text, one block per line.
package html

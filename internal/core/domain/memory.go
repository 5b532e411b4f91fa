package domain

import (
	"strings"
	"time"
	"unicode"
)

// MemoryNote is an authored or distilled insight.
type MemoryNote struct {
	// ID is "m-YYYYMMDD-<8 hex>" or "m-<doc-style hash>" in deterministic mode.
	ID string

	// Text is the note body.
	Text string

	// Timestamp is when the note was created or last updated.
	Timestamp time.Time

	// Tags is a set of free-form labels.
	Tags []string

	// Topics lists the names of topics the note is linked to.
	// Populated on read from HasTopic edges.
	Topics []string

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// Entity is a labelled node referenced through Mentions edges.
type Entity struct {
	ID   string
	Name string
	Type string
}

// Topic is a labelled node referenced through HasTopic edges.
type Topic struct {
	ID   string
	Name string
}

// MemoryIDPrefix starts every memory note id.
const MemoryIDPrefix = "m-"

// NewMemoryID builds a time-plus-random memory id. suffix should be 8
// random hex characters.
func NewMemoryID(ts time.Time, suffix string) string {
	return MemoryIDPrefix + ts.UTC().Format("20060102") + "-" + suffix
}

// DeterministicMemoryID derives a memory id from the note text.
func DeterministicMemoryID(text string) string {
	return MemoryIDPrefix + AddressDoc([]byte(text))
}

// NewTopic returns the topic for a display name.
func NewTopic(name string) Topic {
	name = strings.TrimSpace(name)
	return Topic{ID: "topic-" + Slug(name), Name: name}
}

// NewEntity returns the entity for a name and type. An empty type becomes "thing".
func NewEntity(name, typ string) Entity {
	name = strings.TrimSpace(name)
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = "thing"
	}
	return Entity{ID: "entity-" + Slug(typ) + "-" + Slug(name), Name: name, Type: typ}
}

// Slug lowercases s and joins runs of letters and digits with hyphens.
func Slug(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

package services

import (
	"sort"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// fusedHit is a candidate scored by both modalities.
type fusedHit struct {
	id     string
	kind   domain.NodeKind
	vector float64
	text   float64
	score  float64
}

// normalise min-max scales scores into [0, 1] within one result set. When
// every score is equal each candidate gets 1.
func normalise(cands []domain.Candidate) map[string]float64 {
	out := make(map[string]float64, len(cands))
	if len(cands) == 0 {
		return out
	}
	lo, hi := cands[0].Score, cands[0].Score
	for _, c := range cands[1:] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}
	for _, c := range cands {
		if hi == lo {
			out[c.ID] = 1
			continue
		}
		out[c.ID] = (c.Score - lo) / (hi - lo)
	}
	return out
}

// fuse combines both result sets into one ranking. A candidate missing from
// one modality contributes zero for it. Ties fall back to the text score,
// then the id.
func fuse(vector, text []domain.Candidate, vectorWeight, textWeight float64) []fusedHit {
	vs := normalise(vector)
	ts := normalise(text)

	byID := make(map[string]*fusedHit, len(vector)+len(text))
	var order []string
	add := func(c domain.Candidate) {
		if _, ok := byID[c.ID]; ok {
			return
		}
		byID[c.ID] = &fusedHit{id: c.ID, kind: c.Kind}
		order = append(order, c.ID)
	}
	for _, c := range vector {
		add(c)
	}
	for _, c := range text {
		add(c)
	}

	hits := make([]fusedHit, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.vector = vs[id]
		h.text = ts[id]
		h.score = vectorWeight*h.vector + textWeight*h.text
		hits = append(hits, *h)
	}
	sortHits(hits)
	return hits
}

func sortHits(hits []fusedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].text != hits[j].text {
			return hits[i].text > hits[j].text
		}
		return hits[i].id < hits[j].id
	})
}

// capPerDoc keeps at most limit hits per owning doc, preserving order.
// Memory notes are their own group.
func capPerDoc(hits []fusedHit, limit int) []fusedHit {
	if limit <= 0 {
		return hits
	}
	counts := make(map[string]int)
	out := make([]fusedHit, 0, len(hits))
	for _, h := range hits {
		key := ownerOf(h)
		if counts[key] >= limit {
			continue
		}
		counts[key]++
		out = append(out, h)
	}
	return out
}

// ownerOf returns the doc id of a chunk hit, or the hit id otherwise.
func ownerOf(h fusedHit) string {
	if h.kind == domain.NodeChunk {
		if docID, _, err := domain.ParseChunkID(h.id); err == nil {
			return docID
		}
	}
	return h.id
}

// interleave reorders hits round-robin across groups. Groups are visited in
// order of their best hit and each keeps its internal order. An empty group
// key puts the hit in a group of its own.
func interleave(hits []fusedHit, groups map[string]string) []fusedHit {
	var keys []string
	buckets := make(map[string][]fusedHit)
	for _, h := range hits {
		key := groups[h.id]
		if key == "" {
			key = "\x00" + h.id
		}
		if _, ok := buckets[key]; !ok {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], h)
	}

	out := make([]fusedHit, 0, len(hits))
	for round := 0; len(out) < len(hits); round++ {
		for _, key := range keys {
			if round < len(buckets[key]) {
				out = append(out, buckets[key][round])
			}
		}
	}
	return out
}

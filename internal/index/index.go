// Package index holds chunk embeddings per document generation and answers
// cosine nearest-neighbour queries over them.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"sniprag/internal/models"
	"sniprag/internal/util"
)

// Entry is one indexed chunk. Metadata is a copy owned by the entry.
type Entry struct {
	ChunkID    string               `json:"chunk_id"`
	Text       string               `json:"text"`
	Vector     []float32            `json:"vector"`
	Metadata   models.ChunkMetadata `json:"metadata"`
	Generation uint64               `json:"generation"`

	norm float64
}

// Filter restricts a search. Zero values match everything.
type Filter struct {
	DocumentIDs []string         `json:"document_ids,omitempty"`
	Page        *int             `json:"page,omitempty"`
	Kind        models.ChunkKind `json:"chunk_kind,omitempty"`
}

func (f Filter) match(e *Entry) bool {
	if f.Page != nil && e.Metadata.Page != *f.Page {
		return false
	}
	if f.Kind != "" && e.Metadata.ChunkKind != f.Kind {
		return false
	}
	return true
}

type Hit struct {
	Entry Entry
	Score float64
}

type generation struct {
	id      uint64
	entries []Entry
}

// Index is safe for concurrent use. A document's entries are replaced as a
// whole; readers see either the old or the new generation, never a mix.
type Index struct {
	mu      sync.RWMutex
	dim     int
	docs    map[string]*generation
	lastGen uint64
}

// New creates an index. dim <= 0 lets the first stored generation fix it.
func New(dim int) *Index {
	if dim < 0 {
		dim = 0
	}
	return &Index{dim: dim, docs: map[string]*generation{}}
}

func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// NextGeneration reserves a generation number for a build that is persisted
// before it is installed with Restore.
func (ix *Index) NextGeneration() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.lastGen++
	return ix.lastGen
}

// Restore installs a generation under a known number: a persisted one on
// reload, or one reserved with NextGeneration.
func (ix *Index) Restore(documentID string, gen uint64, entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.install(documentID, gen, entries)
}

func (ix *Index) install(documentID string, gen uint64, entries []Entry) error {
	dim := ix.dim
	seen := make(map[string]struct{}, len(entries))
	prepared := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Metadata.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q", util.ErrIndexInconsistency, e.ChunkID, e.Metadata.DocumentID, documentID)
		}
		if _, dup := seen[e.ChunkID]; dup {
			return fmt.Errorf("%w: duplicate chunk id %s", util.ErrIndexInconsistency, e.ChunkID)
		}
		seen[e.ChunkID] = struct{}{}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim || dim == 0 {
			return fmt.Errorf("%w: chunk %s has dimension %d, index has %d", util.ErrIndexInconsistency, e.ChunkID, len(e.Vector), dim)
		}
		e.Vector = append([]float32(nil), e.Vector...)
		e.Generation = gen
		e.norm = norm(e.Vector)
		prepared[i] = e
	}
	ix.dim = dim
	ix.docs[documentID] = &generation{id: gen, entries: prepared}
	if gen > ix.lastGen {
		ix.lastGen = gen
	}
	return nil
}

// Delete removes every entry of documentID. It reports whether any
// generation was present.
func (ix *Index) Delete(documentID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.docs[documentID]
	delete(ix.docs, documentID)
	return ok
}

// Search ranks entries by cosine similarity to query, highest first, ties
// broken by ascending chunk id. It never returns more than topK hits.
func (ix *Index) Search(query []float32, topK int, f Filter) ([]Hit, error) {
	if topK < 1 {
		return nil, util.ErrInvalidTopK
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	hits := make([]Hit, 0)
	if len(ix.docs) == 0 || ix.dim == 0 {
		return hits, nil
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", util.ErrEmbedding, len(query), ix.dim)
	}
	qn := norm(query)
	docs := make(map[string]struct{}, len(f.DocumentIDs))
	for _, id := range f.DocumentIDs {
		docs[id] = struct{}{}
	}
	for id, g := range ix.docs {
		if len(docs) > 0 {
			if _, ok := docs[id]; !ok {
				continue
			}
		}
		for i := range g.entries {
			e := &g.entries[i]
			if !f.match(e) {
				continue
			}
			hits = append(hits, Hit{Entry: *e, Score: cosine(query, qn, e.Vector, e.norm)})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.ChunkID < hits[j].Entry.ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Snapshot returns a copy of the live generation of documentID.
func (ix *Index) Snapshot(documentID string) (uint64, []Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	g, ok := ix.docs[documentID]
	if !ok {
		return 0, nil, false
	}
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return g.id, out, true
}

// Generation reports the live generation of documentID.
func (ix *Index) Generation(documentID string) (uint64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	g, ok := ix.docs[documentID]
	if !ok {
		return 0, false
	}
	return g.id, true
}

// Documents lists indexed document ids in ascending order.
func (ix *Index) Documents() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.docs))
	for id := range ix.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len is the total number of entries across documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, g := range ix.docs {
		n += len(g.entries)
	}
	return n
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(q []float32, qn float64, v []float32, vn float64) float64 {
	if qn == 0 || vn == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qn * vn)
}

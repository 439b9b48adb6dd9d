package apitrack

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hash is the content hash used to detect repeated responses.
func Hash(ex *Exchange) string {
	h := sha256.New()
	h.Write([]byte(ex.Method))
	h.Write([]byte(ex.URL))
	h.Write([]byte(strconv.Itoa(ex.Status)))
	h.Write([]byte(ex.ResponseBody))
	return hex.EncodeToString(h.Sum(nil))
}

// A Deduplicator remembers the first exchange per content hash across a
// section. Repeats keep their request data but drop the response body and
// point to the first occurrence instead. Nothing is ever dropped.
type Deduplicator struct {
	first map[string]string
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{first: map[string]string{}}
}

// Seed registers already stored exchanges, eg. when a section is
// continued.
func (d *Deduplicator) Seed(exchanges []*Exchange) {
	for _, ex := range exchanges {
		if ex.Deduplicated || ex.DedupHash == "" {
			continue
		}
		if _, found := d.first[ex.DedupHash]; !found {
			d.first[ex.DedupHash] = ex.ID
		}
	}
}

// Stage deduplicates copies of exchanges against d and against each other
// without registering anything. The originals are left untouched. Calling
// commit registers the staged first occurrences, which callers do once
// the copies are stored.
func (d *Deduplicator) Stage(exchanges []*Exchange) (staged []*Exchange, commit func()) {
	local := map[string]string{}
	staged = make([]*Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		cp := *ex
		staged = append(staged, &cp)
		if cp.Failed {
			continue
		}
		hash := Hash(&cp)
		cp.DedupHash = hash
		firstID, found := d.first[hash]
		if !found {
			firstID, found = local[hash]
		}
		if !found || firstID == cp.ID {
			local[hash] = cp.ID
			continue
		}
		cp.Deduplicated = true
		cp.DedupOf = firstID
		cp.ResponseBody = ""
	}
	commit = func() {
		for hash, id := range local {
			if _, found := d.first[hash]; !found {
				d.first[hash] = id
			}
		}
	}
	return staged, commit
}

// BodyIndex maps exchange ids to response bodies of fully stored
// exchanges.
type BodyIndex map[string]string

func NewBodyIndex(exchanges []*Exchange) BodyIndex {
	idx := BodyIndex{}
	idx.Add(exchanges)
	return idx
}

func (idx BodyIndex) Add(exchanges []*Exchange) {
	for _, ex := range exchanges {
		if !ex.Deduplicated {
			idx[ex.ID] = ex.ResponseBody
		}
	}
}

// Resolve returns copies of exchanges with the bodies of deduplicated
// entries restored from the index. Entries whose original is unknown are
// returned unchanged.
func (idx BodyIndex) Resolve(exchanges []*Exchange) []*Exchange {
	result := make([]*Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		cp := *ex
		if ex.Deduplicated {
			if body, found := idx[ex.DedupOf]; found {
				cp.ResponseBody = body
			}
		}
		result = append(result, &cp)
	}
	return result
}

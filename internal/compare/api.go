package compare

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jakopako/flowcheck/internal/apitrack"
)

// maxArrayElements is the number of leading array elements whose shape is
// compared.
const maxArrayElements = 3

// Endpoint identifies an api by method and path, host and query are
// ignored.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (e Endpoint) String() string {
	return e.Method + " " + e.Path
}

type EndpointChange struct {
	Endpoint
	OldStatus int      `json:"oldStatus"`
	NewStatus int      `json:"newStatus"`
	Changes   []string `json:"changes"`
}

type APIResult struct {
	HasChanges      bool             `json:"hasChanges"`
	SimilarityScore float64          `json:"similarityScore"`
	Added           []Endpoint       `json:"added"`
	Removed         []Endpoint       `json:"removed"`
	Modified        []EndpointChange `json:"modified"`
}

// CompareAPI diffs two sets of exchanges by endpoint. When an endpoint was
// called several times the last successful call represents it.
// Deduplicated exchanges must be resolved before, see
// apitrack.BodyIndex.
func CompareAPI(oldAPIs, newAPIs []*apitrack.Exchange) APIResult {
	oldIdx, oldOrder := indexEndpoints(oldAPIs)
	newIdx, newOrder := indexEndpoints(newAPIs)
	res := APIResult{
		Added:    []Endpoint{},
		Removed:  []Endpoint{},
		Modified: []EndpointChange{},
	}
	total, matched := 0, 0
	for _, ep := range oldOrder {
		total++
		nex, found := newIdx[ep]
		if !found {
			res.Removed = append(res.Removed, ep)
			continue
		}
		oex := oldIdx[ep]
		changes := []string{}
		if oex.Status != nex.Status {
			changes = append(changes, fmt.Sprintf("status: %d -> %d", oex.Status, nex.Status))
		}
		changes = append(changes, ShapeDiff(oex.ResponseBody, nex.ResponseBody)...)
		if len(changes) == 0 {
			matched++
			continue
		}
		res.Modified = append(res.Modified, EndpointChange{
			Endpoint:  ep,
			OldStatus: oex.Status,
			NewStatus: nex.Status,
			Changes:   changes,
		})
	}
	for _, ep := range newOrder {
		if _, found := oldIdx[ep]; !found {
			total++
			res.Added = append(res.Added, ep)
		}
	}
	res.HasChanges = len(res.Added)+len(res.Removed)+len(res.Modified) > 0
	res.SimilarityScore = score(matched, total)
	return res
}

func indexEndpoints(exchanges []*apitrack.Exchange) (map[Endpoint]*apitrack.Exchange, []Endpoint) {
	idx := map[Endpoint]*apitrack.Exchange{}
	order := []Endpoint{}
	for _, ex := range exchanges {
		ep := Endpoint{Method: strings.ToUpper(ex.Method), Path: ex.Path()}
		prev, found := idx[ep]
		if !found {
			order = append(order, ep)
		}
		if !found || !ex.Failed || prev.Failed {
			idx[ep] = ex
		}
	}
	return idx, order
}

// ShapeDiff compares the structure of two response bodies: object keys and
// value types, recursively. Arrays are compared on their leading elements
// only. Bodies that are not json are compared by kind only.
func ShapeDiff(oldBody, newBody string) []string {
	diffs := []string{}
	shapeDiff("$", parseBody(oldBody), parseBody(newBody), &diffs)
	return diffs
}

type textBody struct{}

func parseBody(body string) any {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return textBody{}
	}
	return v
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case textBody:
		return "text"
	}
	return fmt.Sprintf("%T", v)
}

func shapeDiff(path string, a, b any, diffs *[]string) {
	ta, tb := typeName(a), typeName(b)
	if ta != tb {
		*diffs = append(*diffs, fmt.Sprintf("%s: %s -> %s", path, ta, tb))
		return
	}
	switch av := a.(type) {
	case map[string]any:
		bv := b.(map[string]any)
		keys := map[string]bool{}
		for k := range av {
			keys[k] = true
		}
		for k := range bv {
			keys[k] = true
		}
		for _, k := range slices.Sorted(maps.Keys(keys)) {
			p := path + "." + k
			va, okA := av[k]
			vb, okB := bv[k]
			switch {
			case !okA:
				*diffs = append(*diffs, p+": key added")
			case !okB:
				*diffs = append(*diffs, p+": key removed")
			default:
				shapeDiff(p, va, vb, diffs)
			}
		}
	case []any:
		bv := b.([]any)
		n := min(len(av), len(bv), maxArrayElements)
		for i := range n {
			shapeDiff(fmt.Sprintf("%s[%d]", path, i), av[i], bv[i], diffs)
		}
	}
}

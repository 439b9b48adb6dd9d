package compare

import (
	"github.com/jakopako/flowcheck/internal/apitrack"
	"github.com/jakopako/flowcheck/internal/domtree"
)

// Result is the comparison of one screen.
type Result struct {
	DOM DOMResult `json:"dom"`
	API APIResult `json:"api"`
	// Score is the unweighted mean of the DOM and API scores.
	Score float64 `json:"score"`
}

func (r Result) HasChanges() bool {
	return r.DOM.HasChanges || r.API.HasChanges
}

// Screen compares the DOM and api captures of a screen.
func Screen(oldTree, newTree *domtree.Node, oldAPIs, newAPIs []*apitrack.Exchange) Result {
	dom := CompareDOM(oldTree, newTree)
	api := CompareAPI(oldAPIs, newAPIs)
	return Result{
		DOM:   dom,
		API:   api,
		Score: (dom.SimilarityScore + api.SimilarityScore) / 2,
	}
}

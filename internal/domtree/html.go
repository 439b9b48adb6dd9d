package domtree

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FromHTML builds a DomTree from raw html. Computed styles and bounding
// boxes are not available, so only structure, attributes, text and form
// values are captured. Elements hidden through the hidden attribute or an
// inline display:none are marked hidden.
func FromHTML(htmlStr string) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}
	root := doc.Find("html")
	if root.Length() == 0 {
		return nil, errors.New("document has no html element")
	}
	raw := rawFromHTML(root.Get(0), 0)
	n := Normalize(raw)
	if n == nil {
		return nil, errors.New("document is empty after serialization")
	}
	return n, nil
}

func rawFromHTML(hn *html.Node, depth int) *RawNode {
	if depth > MaxDepth {
		return nil
	}
	switch hn.Type {
	case html.TextNode:
		return &RawNode{Tag: TextTag, Value: hn.Data}
	case html.ElementNode:
	default:
		return nil
	}

	raw := &RawNode{Tag: hn.Data}
	if len(hn.Attr) > 0 {
		raw.Attrs = map[string]string{}
		for _, a := range hn.Attr {
			raw.Attrs[a.Key] = a.Val
		}
	}
	raw.Hidden = isStaticallyHidden(raw.Attrs)
	if fv, ok := staticFormValue(hn); ok {
		raw.FormValue = &fv
	}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if rc := rawFromHTML(c, depth+1); rc != nil {
			raw.Children = append(raw.Children, rc)
		}
	}
	return raw
}

func isStaticallyHidden(attrs map[string]string) bool {
	if _, ok := attrs["hidden"]; ok {
		return true
	}
	if attrs["type"] == "hidden" {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attrs["style"]), " ", "")
	return strings.Contains(style, "display:none")
}

func staticFormValue(hn *html.Node) (string, bool) {
	s := goquery.NewDocumentFromNode(hn).Selection
	switch hn.Data {
	case "input":
		t := strings.ToLower(s.AttrOr("type", "text"))
		if t == "checkbox" || t == "radio" {
			_, checked := s.Attr("checked")
			if checked {
				return "true", true
			}
			return "false", true
		}
		v := s.AttrOr("value", "")
		if t == "password" && v != "" {
			return "********", true
		}
		return v, true
	case "textarea":
		return s.Text(), true
	case "select":
		opt := s.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = s.Find("option").First()
		}
		if opt.Length() == 0 {
			return "", true
		}
		return opt.AttrOr("value", strings.TrimSpace(opt.Text())), true
	}
	return "", false
}

package domtree

import "strings"

// skipTags are never serialized.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "link": true,
}

// contentTags is the set of content bearing tags that get computed styles
// and a bounding box. Wrapper elements like div are intentionally absent.
var contentTags = map[string]bool{
	"a": true, "button": true, "input": true, "select": true, "textarea": true,
	"label": true, "img": true, "p": true, "span": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"td": true, "th": true, "table": true, "form": true, "nav": true,
	"header": true, "footer": true, "main": true, "strong": true, "em": true,
	"small": true, "code": true, "pre": true, "svg": true, "video": true,
}

// CSSProperties are the computed style properties captured for content tags.
var CSSProperties = []string{
	"color",
	"background-color",
	"background-image",
	"font-family",
	"font-size",
	"font-weight",
	"font-style",
	"line-height",
	"letter-spacing",
	"text-align",
	"text-decoration-line",
	"text-transform",
	"direction",
	"display",
	"visibility",
	"opacity",
	"position",
	"z-index",
	"margin",
	"padding",
	"border",
	"border-radius",
	"box-shadow",
	"width",
	"height",
}

var cssPropertySet = func() map[string]bool {
	m := make(map[string]bool, len(CSSProperties))
	for _, p := range CSSProperties {
		m[p] = true
	}
	return m
}()

// boringValues are style values that are treated as absent.
var boringValues = map[string]bool{
	"none": true, "auto": true, "0px": true, "rgba(0, 0, 0, 0)": true,
	"rgba(0,0,0,0)": true, "static": true, "visible": true, "normal": true,
	"ltr": true,
}

// allowedAttrs are kept verbatim. aria-* attributes are allowed in addition.
var allowedAttrs = map[string]bool{
	"id": true, "class": true, "name": true, "type": true, "href": true,
	"src": true, "alt": true, "title": true, "role": true, "placeholder": true,
	"value": true, "for": true, "action": true, "method": true,
	"disabled": true, "checked": true, "selected": true, "readonly": true,
	"required": true, "data-testid": true, "data-test": true, "data-cy": true,
}

// frameworkAttrPrefixes mark attributes that frameworks generate and that
// change between builds without any semantic meaning.
var frameworkAttrPrefixes = []string{
	"data-v-", "_ngcontent-", "_nghost-", "ng-", "data-reactid", "data-react-",
	"data-svelte-", "data-styled",
}

// ToolMarkerAttr marks elements injected by flowcheck itself.
const ToolMarkerAttr = "data-flowcheck-ui"

// ToolIDPrefix is the id prefix of elements injected by flowcheck itself.
const ToolIDPrefix = "__flowcheck"

func IsContentTag(tag string) bool {
	return contentTags[tag]
}

func IsBoringValue(v string) bool {
	return boringValues[strings.TrimSpace(v)]
}

// IsAllowedAttr reports whether the attribute name survives serialization.
func IsAllowedAttr(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "on") {
		return false
	}
	for _, p := range frameworkAttrPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	if allowedAttrs[name] {
		return true
	}
	return strings.HasPrefix(name, "aria-")
}

func isToolElement(attrs map[string]string) bool {
	if _, ok := attrs[ToolMarkerAttr]; ok {
		return true
	}
	return strings.HasPrefix(attrs["id"], ToolIDPrefix)
}

package domtree

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// serializerScript is a pure, DOM only function evaluated in the page. It
// collects the raw tree; all filtering that does not require the live DOM
// happens in Normalize.
const serializerScript = `(() => {
  const SKIP = new Set(%s);
  const CONTENT = new Set(%s);
  const PROPS = %s;
  const MAX_DEPTH = %d;
  const MARKER = %s;
  const ID_PREFIX = %s;

  function formValue(el, tag) {
    if (tag === 'input') {
      const t = (el.type || '').toLowerCase();
      if (t === 'checkbox' || t === 'radio') return String(el.checked);
      if (t === 'password') return el.value ? '********' : '';
      return el.value;
    }
    if (tag === 'select' || tag === 'textarea') return el.value;
    return null;
  }

  function walk(node, depth) {
    if (depth > MAX_DEPTH) return null;
    if (node.nodeType === Node.TEXT_NODE) {
      const v = node.nodeValue;
      if (!v || !v.trim()) return null;
      return {tag: '#text', value: v};
    }
    if (node.nodeType !== Node.ELEMENT_NODE) return null;
    const tag = node.tagName.toLowerCase();
    if (SKIP.has(tag)) return null;
    if (node.hasAttribute(MARKER) || (node.id && node.id.startsWith(ID_PREFIX))) return null;

    const out = {tag: tag};
    if (node.attributes && node.attributes.length) {
      out.attrs = {};
      for (const a of node.attributes) out.attrs[a.name] = a.value;
    }
    let hidden = false;
    try {
      const r = node.getBoundingClientRect();
      hidden = r.width === 0 && r.height === 0 && node.offsetParent === null && tag !== 'body' && tag !== 'html';
      if (!hidden && CONTENT.has(tag)) out.rect = {x: r.x, y: r.y, width: r.width, height: r.height};
    } catch (e) {
      out.rectError = String(e);
    }
    if (hidden) out.hidden = true;
    if (!hidden && CONTENT.has(tag)) {
      try {
        const cs = window.getComputedStyle(node);
        out.css = {};
        for (const p of PROPS) out.css[p] = cs.getPropertyValue(p);
      } catch (e) {
        out.styleError = String(e);
      }
    }
    const fv = formValue(node, tag);
    if (fv !== null && fv !== undefined) out.formValue = fv;
    const kids = [];
    for (const c of node.childNodes) {
      const s = walk(c, depth + 1);
      if (s) kids.push(s);
    }
    if (kids.length) out.children = kids;
    return out;
  }

  return walk(document.documentElement, 0);
})()`

// Script returns the serializer expression with the current rule sets
// embedded.
func Script() string {
	return fmt.Sprintf(serializerScript,
		jsonList(slices.Sorted(maps.Keys(skipTags))),
		jsonList(slices.Sorted(maps.Keys(contentTags))),
		jsonList(CSSProperties),
		MaxDepth,
		jsonString(ToolMarkerAttr),
		jsonString(ToolIDPrefix),
	)
}

func jsonList(l []string) string {
	b, _ := json.Marshal(l)
	return string(b)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

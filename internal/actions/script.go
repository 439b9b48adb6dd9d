package actions

import (
	"fmt"
	"time"
)

// RecorderScript returns the page script that listens for user
// interactions and hands them in batches to the exposed function named
// binding as a JSON array of Events. Elements inside the tool's own ui
// (marker attribute or id prefix) are ignored.
func RecorderScript(binding, markerAttr, idPrefix string, interval time.Duration) string {
	return fmt.Sprintf(`(() => {
  if (window.__flowcheckRecorder) return;
  window.__flowcheckRecorder = true;
  const binding = %q, marker = %q, prefix = %q, interval = %d;
  let buf = [];
  const own = (el) => {
    for (let e = el; e && e.nodeType === 1; e = e.parentElement) {
      if (e.hasAttribute(marker) || (e.id && e.id.startsWith(prefix))) return true;
    }
    return false;
  };
  const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s;
  const selector = (el) => {
    if (!el || el.nodeType !== 1) return '';
    if (el.id) return '#' + esc(el.id);
    const tid = el.getAttribute('data-testid');
    if (tid) return '[data-testid="' + tid + '"]';
    const name = el.getAttribute('name');
    if (name) return el.tagName.toLowerCase() + '[name="' + name + '"]';
    const parts = [];
    for (let e = el; e && e.nodeType === 1 && e !== document.body; e = e.parentElement) {
      if (e.id) { parts.unshift('#' + esc(e.id)); break; }
      let i = 1;
      for (let s = e.previousElementSibling; s; s = s.previousElementSibling) {
        if (s.tagName === e.tagName) i++;
      }
      parts.unshift(e.tagName.toLowerCase() + ':nth-of-type(' + i + ')');
    }
    return parts.join(' > ');
  };
  const text = (el) => ((el && el.innerText) || '').trim().slice(0, 80);
  const push = (ev) => {
    ev.time = Date.now();
    const last = buf[buf.length - 1];
    if (ev.type === 'input' && last && last.type === 'input' && last.selector === ev.selector) {
      buf[buf.length - 1] = ev;
      return;
    }
    buf.push(ev);
  };
  const value = (el) => (el.type === 'password') ? '********' : String(el.value ?? '');
  document.addEventListener('click', (e) => {
    if (own(e.target)) return;
    push({type: 'click', selector: selector(e.target), text: text(e.target), position: {x: Math.round(e.clientX), y: Math.round(e.clientY)}});
  }, true);
  document.addEventListener('dblclick', (e) => {
    if (own(e.target)) return;
    push({type: 'dblclick', selector: selector(e.target), text: text(e.target)});
  }, true);
  document.addEventListener('input', (e) => {
    if (own(e.target) || e.target.tagName === 'SELECT') return;
    push({type: 'input', selector: selector(e.target), value: value(e.target)});
  }, true);
  document.addEventListener('change', (e) => {
    if (own(e.target)) return;
    if (e.target.tagName === 'SELECT') {
      push({type: 'select', selector: selector(e.target), value: String(e.target.value)});
    } else if (e.target.type !== 'checkbox' && e.target.type !== 'radio') {
      push({type: 'change', selector: selector(e.target), value: value(e.target)});
    }
  }, true);
  document.addEventListener('keydown', (e) => {
    if (own(e.target) || !['Enter', 'Escape', 'Tab'].includes(e.key)) return;
    push({type: 'keydown', selector: selector(e.target), key: e.key});
  }, true);
  document.addEventListener('submit', (e) => {
    if (own(e.target)) return;
    push({type: 'submit', selector: selector(e.target)});
  }, true);
  let scrollTimer = null;
  window.addEventListener('scroll', () => {
    clearTimeout(scrollTimer);
    scrollTimer = setTimeout(() => push({type: 'scroll', position: {x: Math.round(window.scrollX), y: Math.round(window.scrollY)}}), 150);
  }, true);
  const flush = () => {
    if (!buf.length || typeof window[binding] !== 'function') return;
    const batch = buf;
    buf = [];
    window[binding](JSON.stringify(batch));
  };
  setInterval(flush, interval);
  window.addEventListener('beforeunload', flush);
})();`, binding, markerAttr, idPrefix, interval.Milliseconds())
}

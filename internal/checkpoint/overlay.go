package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jakopako/flowcheck/internal/domtree"
	"github.com/jakopako/flowcheck/internal/log"
)

// OverlayBinding is the function the overlay buttons call.
const OverlayBinding = "__flowcheckCheckpoint"

const overlayID = domtree.ToolIDPrefix + "-checkpoint"

// Page is what the overlay needs from a browser driver.
type Page interface {
	Evaluate(ctx context.Context, expr string, res any) error
	Expose(ctx context.Context, name string, fn func(payload string)) error
}

// Overlay shows a banner with continue and skip buttons inside the page
// itself. The banner is marked as tool ui and never serialized. It is
// re-injected periodically since the operator may navigate while it is
// shown.
type Overlay struct {
	page      Page
	decisions chan string
	interval  time.Duration
}

// NewOverlay exposes the decision binding on page.
func NewOverlay(ctx context.Context, page Page) (*Overlay, error) {
	o := &Overlay{
		page:      page,
		decisions: make(chan string, 1),
		interval:  time.Second,
	}
	err := page.Expose(ctx, OverlayBinding, func(payload string) {
		select {
		case o.decisions <- payload:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expose checkpoint binding: %w", err)
	}
	return o, nil
}

func (o *Overlay) showScript(req Request) string {
	return fmt.Sprintf(`(() => {
  if (document.getElementById(%[1]q) || !document.body) return;
  const box = document.createElement('div');
  box.id = %[1]q;
  box.setAttribute(%[2]q, '');
  box.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:2147483647;padding:12px 16px;background:#7f1d1d;color:#fff;font:14px sans-serif;white-space:pre-wrap;';
  box.textContent = %[3]q;
  for (const [label, decision] of [['Continue', 'continue'], ['Skip', 'skip']]) {
    const b = document.createElement('button');
    b.textContent = label;
    b.style.cssText = 'margin:8px 8px 0 0;padding:4px 12px;';
    b.addEventListener('click', (e) => { e.stopPropagation(); window[%[4]q](decision); });
    box.appendChild(b);
  }
  document.body.appendChild(box);
})()`, overlayID, domtree.ToolMarkerAttr, req.String(), OverlayBinding)
}

func (o *Overlay) hideScript() string {
	return fmt.Sprintf(`(() => { const el = document.getElementById(%q); if (el) el.remove(); })()`, overlayID)
}

func (o *Overlay) Wait(ctx context.Context, req Request) (Decision, error) {
	logger := log.LoggerFromContext(ctx)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	defer func() {
		// a second click must not answer the next checkpoint
		select {
		case <-o.decisions:
		default:
		}
		var res any
		if err := o.page.Evaluate(context.WithoutCancel(ctx), o.hideScript(), &res); err != nil {
			logger.Debug("failed to remove checkpoint overlay", slog.String("err", err.Error()))
		}
	}()
	for {
		var res any
		if err := o.page.Evaluate(ctx, o.showScript(req), &res); err != nil {
			logger.Debug("failed to show checkpoint overlay", slog.String("err", err.Error()))
		}
		select {
		case payload := <-o.decisions:
			d, err := ParseDecision(payload)
			if err != nil {
				logger.Warn(err.Error())
				continue
			}
			return d, nil
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

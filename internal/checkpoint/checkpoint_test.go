package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jakopako/flowcheck/internal/browser"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{in: "continue", want: Continue},
		{in: "skip", want: Skip},
		{in: "abort", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseDecision(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseDecision(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseDecision(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChannel(t *testing.T) {
	ch := NewChannel()
	ctx := context.Background()
	req := Request{ScreenID: "home", ScreenName: "Home", Reason: "selector not found"}

	go func() {
		got := <-ch.Requests()
		if got.ScreenID != "home" {
			t.Errorf("expected request for home, got %s", got.ScreenID)
		}
		ch.Resolve(ctx, Continue)
	}()

	d, err := ch.Wait(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Continue {
		t.Errorf("expected continue, got %s", d)
	}
}

func TestWithTimeout(t *testing.T) {
	cp := WithTimeout(NewChannel(), 20*time.Millisecond)
	_, err := cp.Wait(context.Background(), Request{ScreenID: "home"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cp.Wait(ctx, Request{ScreenID: "home"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, ok := WithTimeout(Fixed(Skip), 0).(Fixed); !ok {
		t.Errorf("a zero timeout should return the checkpoint unchanged")
	}
}

func TestFixed(t *testing.T) {
	d, err := Fixed(Skip).Wait(context.Background(), Request{})
	if err != nil || d != Skip {
		t.Errorf("expected skip, got %q, %v", d, err)
	}
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	m := browser.NewMock()
	o, err := NewOverlay(ctx, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o.interval = 5 * time.Millisecond

	// the click is buffered until a checkpoint waits for it
	if err := m.Call(OverlayBinding, "skip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, err := o.Wait(ctx, Request{ScreenID: "home"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Skip {
		t.Errorf("expected skip, got %s", d)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Call(OverlayBinding, "bogus")
		time.Sleep(20 * time.Millisecond)
		m.Call(OverlayBinding, "continue")
	}()
	d, err = o.Wait(ctx, Request{ScreenID: "settings"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Continue {
		t.Errorf("expected continue, got %s", d)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := o.Wait(tctx, Request{ScreenID: "profile"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	m := browser.NewMock()
	tests := []struct {
		typ     Type
		wantErr bool
	}{
		{typ: TERMINAL_CHECKPOINT_TYPE},
		{typ: OVERLAY_CHECKPOINT_TYPE},
		{typ: SKIP_CHECKPOINT_TYPE},
		{typ: "email", wantErr: true},
	}
	for _, tc := range tests {
		_, err := New(ctx, tc.typ, m, time.Minute)
		if (err != nil) != tc.wantErr {
			t.Errorf("New(%s) error = %v, wantErr %v", tc.typ, err, tc.wantErr)
		}
	}
	if err := m.Call(OverlayBinding, "skip"); err != nil {
		t.Errorf("expected the overlay binding to be exposed: %v", err)
	}
}

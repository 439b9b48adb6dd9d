// Package browser provides the browser drivers used for capture and
// replay: a chromedp based driver for real browsers and an in-memory mock.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jakopako/flowcheck/internal/actions"
	"github.com/jakopako/flowcheck/internal/apitrack"
)

var (
	ErrSelectorNotFound = errors.New("selector not found")
	ErrTimeout          = errors.New("timeout")
	ErrClosed           = errors.New("browser closed")
)

// WaitUntil names the page state Navigate waits for.
type WaitUntil string

const (
	WaitLoad        WaitUntil = "load"
	WaitDOMReady    WaitUntil = "domcontentloaded"
	WaitNetworkIdle WaitUntil = "networkidle"
)

const (
	defaultNavigationTimeout = 15 * time.Second
	defaultActionTimeout     = 5 * time.Second
)

type NavigateOptions struct {
	Timeout   time.Duration
	WaitUntil WaitUntil
}

// A Driver controls one page of a browser.
type Driver interface {
	actions.Driver
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	// Evaluate runs expr in the page and unmarshals its result into res.
	Evaluate(ctx context.Context, expr string, res any) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// OnNetworkEvent registers a handler for network events. Handlers are
	// called from the driver's event goroutine and must not block.
	OnNetworkEvent(handler func(apitrack.NetworkEvent))
	// OnAction registers a handler for recorded user interactions.
	OnAction(handler func([]actions.Event))
	// Expose makes fn callable from the page as window[name](payload).
	Expose(ctx context.Context, name string, fn func(payload string)) error
	Close() error
}

// DriverType selects a Driver implementation.
type DriverType string

const (
	CHROME_DRIVER_TYPE DriverType = "chrome"
	MOCK_DRIVER_TYPE   DriverType = "mock"
)

// Config holds the settings of a driver.
type Config struct {
	Type              DriverType    `yaml:"type" env:"FLOWCHECK_BROWSER" env-default:"chrome"`
	Headless          bool          `yaml:"headless" env:"FLOWCHECK_HEADLESS" env-default:"true"`
	UserAgent         string        `yaml:"user_agent"`
	WindowWidth       int           `yaml:"window_width" env-default:"1920"`
	WindowHeight      int           `yaml:"window_height" env-default:"1080"`
	ExecPath          string        `yaml:"exec_path" env:"FLOWCHECK_CHROME_PATH"`
	RemoteURL         string        `yaml:"remote_url" env:"FLOWCHECK_REMOTE_URL"`
	ActionTimeout     time.Duration `yaml:"action_timeout" env-default:"5s"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" env-default:"15s"`
	// RecordActions installs the interaction recorder in every document.
	RecordActions bool          `yaml:"-"`
	FlushInterval time.Duration `yaml:"-"`
}

// NewDriver returns a new driver depending on the configured type. The
// mock driver starts without pages.
func NewDriver(ctx context.Context, cfg *Config) (Driver, error) {
	switch cfg.Type {
	case CHROME_DRIVER_TYPE, "":
		return NewChrome(ctx, cfg)
	case MOCK_DRIVER_TYPE:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("driver of type '%s' not implemented", cfg.Type)
	}
}

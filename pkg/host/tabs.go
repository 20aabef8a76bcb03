package host

import (
	"context"
	"fmt"

	"github.com/kernel/rally/pkg/rally"
	"github.com/pkg/browser"
	"github.com/pterm/pterm"
)

// DesktopTabs opens pages in the system browser. It cannot see which tabs
// are open, so Query always reports none.
type DesktopTabs struct {
	// Open defaults to browser.OpenURL.
	Open func(url string) error
}

func (d DesktopTabs) Query(ctx context.Context, urlPattern string) ([]rally.Tab, error) {
	return nil, nil
}

func (d DesktopTabs) Create(ctx context.Context, url string) error {
	open := d.Open
	if open == nil {
		open = browser.OpenURL
	}
	if err := open(url); err != nil {
		pterm.Warning.Printf("Could not open browser automatically: %v\n", err)
		pterm.Info.Printf("Open this URL in your browser: %s\n", url)
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	pterm.Info.Printf("Opened %s in browser\n", url)
	return nil
}

func (d DesktopTabs) Focus(ctx context.Context, tab rally.Tab) error {
	return d.Create(ctx, tab.URL)
}

package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"bankfeed/internal/config"
)

// chromeDriver drives a headless Chrome via the DevTools protocol.
type chromeDriver struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
}

// NewChromeDriver launches a browser and returns a Driver bound to one tab.
// The returned driver must be closed when the scrape finishes.
func NewChromeDriver(cfg *config.Config) (Driver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("lang", "es-ES"),
		chromedp.WindowSize(1366, 900),
	)
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Starting the browser eagerly surfaces a missing binary immediately
	// instead of on the first navigation. The portals localize on the
	// Accept-Language header, and the parsers expect Spanish layouts.
	if err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "es-ES,es;q=0.9"}),
	); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromeDriver{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
	}, nil
}

func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.browserCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	return chromedp.Run(runCtx, actions...)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var count int
	script := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *chromeDriver) Fill(ctx context.Context, selector string, value string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// readTableScript extracts a table into [][]string: the header row first,
// then one slice per body row. Running it in the page avoids a round-trip
// per cell.
const readTableScript = `(() => {
	const table = document.querySelector(%q);
	if (!table) return null;
	const rowText = (row, tag) =>
		Array.from(row.querySelectorAll(tag)).map(c => c.innerText.trim());
	const rows = [];
	const headerRow = table.querySelector("thead tr") || table.querySelector("tr");
	if (headerRow) rows.push(rowText(headerRow, "th, td"));
	const body = table.querySelector("tbody") || table;
	for (const row of body.querySelectorAll("tr")) {
		if (row === headerRow) continue;
		const cells = rowText(row, "td");
		if (cells.length > 0) rows.push(cells);
	}
	return rows;
})()`

func (d *chromeDriver) ReadTable(ctx context.Context, selector string) ([]map[string]string, error) {
	var raw [][]string
	script := fmt.Sprintf(readTableScript, selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no table matches selector %q", selector)
	}

	header := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[name] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readItemsScript extracts one object per item element. Field values of the
// form "sel@attr" read an attribute instead of the text content.
const readItemsScript = `((itemSelector, fields) => {
	const items = [];
	for (const el of document.querySelectorAll(itemSelector)) {
		const item = {};
		for (const [name, spec] of Object.entries(fields)) {
			const at = spec.lastIndexOf("@");
			const sel = at > 0 ? spec.slice(0, at) : spec;
			const attr = at > 0 ? spec.slice(at + 1) : "";
			const target = el.querySelector(sel);
			if (!target) continue;
			item[name] = attr ? (target.getAttribute(attr) || "") : target.innerText.trim();
		}
		items.push(item);
	}
	return items;
})(%s, %s)`

func (d *chromeDriver) ReadItems(ctx context.Context, itemSelector string, fields map[string]string) ([]map[string]string, error) {
	selJSON, err := json.Marshal(itemSelector)
	if err != nil {
		return nil, err
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var items []map[string]string
	script := fmt.Sprintf(readItemsScript, selJSON, fieldsJSON)
	if err := d.run(ctx, chromedp.Evaluate(script, &items)); err != nil {
		return nil, err
	}
	return items, nil
}

func (d *chromeDriver) Close() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	return nil
}

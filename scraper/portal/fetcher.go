package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"immo-scraper/utils"
)

// Fetcher returns the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// blockMarkers are page fragments served instead of results when a portal
// decides the client is a bot.
var blockMarkers = []string{
	"captcha-delivery.com",
	"px-captcha",
	"ich bin kein roboter",
	"sind sie ein roboter",
	"access denied",
	"zugriff verweigert",
}

// BrowserFetcher renders pages in a shared headless Chrome. Each Fetch
// opens its own tab.
type BrowserFetcher struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	settle     time.Duration
	logger     *utils.Logger
}

// NewBrowserFetcher starts the browser. chromeBin may be empty, in which
// case common install locations are searched.
func NewBrowserFetcher(chromeBin string, timeout time.Duration, logger *utils.Logger) (*BrowserFetcher, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "de-DE"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		timeout: timeout,
		settle:  3 * time.Second,
		logger:  logger,
	}, nil
}

// Fetch navigates a fresh tab to url and returns the document HTML.
// Failures are classified for the retry and breaker layers.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("navigate %s: %v: %w", url, err, utils.ErrTransient)
	}
	if resp != nil {
		if err := utils.ClassifyHTTPStatus(int(resp.Status)); err != nil {
			return "", fmt.Errorf("navigate %s: %w", url, err)
		}
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Sleep(f.settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("render %s: timeout: %w", url, utils.ErrTransient)
		}
		return "", fmt.Errorf("render %s: %v: %w", url, err, utils.ErrTransient)
	}

	if isBlocked(html) {
		return "", fmt.Errorf("%s: %w", url, utils.ErrBlocked)
	}
	f.logger.Debug("[browser] Fetched %s (%d bytes)", url, len(html))
	return html, nil
}

// Close shuts the browser down.
func (f *BrowserFetcher) Close() {
	f.cancel()
}

func isBlocked(html string) bool {
	lower := strings.ToLower(html)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

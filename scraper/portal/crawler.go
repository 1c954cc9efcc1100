package portal

import (
	"context"
	"fmt"
	"time"

	"immo-scraper/models"
	"immo-scraper/utils"
)

// CrawlerConfig holds the crawl limits and resilience settings.
type CrawlerConfig struct {
	MaxPages         int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Crawler walks the result pages of a search URL. Every fetch goes through
// the shared rate limiter, the circuit breaker of its portal and the retry
// policy, in that order.
type Crawler struct {
	fetcher   Fetcher
	extractor Extractor
	limiter   *utils.RateLimiter
	retry     *utils.RetryConfig
	breakers  map[models.Source]*utils.CircuitBreaker
	visited   *utils.KeySet
	maxPages  int
	logger    *utils.Logger
}

func NewCrawler(
	fetcher Fetcher,
	extractor Extractor,
	limiter *utils.RateLimiter,
	retry *utils.RetryConfig,
	cfg CrawlerConfig,
	logger *utils.Logger,
) *Crawler {
	breakers := make(map[models.Source]*utils.CircuitBreaker, len(registry))
	for _, p := range registry {
		breakers[p.Source] = utils.NewCircuitBreaker(string(p.Source), cfg.BreakerThreshold, cfg.BreakerCooldown, logger)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &Crawler{
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		retry:     retry,
		breakers:  breakers,
		visited:   utils.NewKeySet(),
		maxPages:  cfg.MaxPages,
		logger:    logger,
	}
}

// Breaker returns the circuit breaker guarding a portal.
func (c *Crawler) Breaker(src models.Source) *utils.CircuitBreaker {
	return c.breakers[src]
}

// Reset forgets the visited pages so a new run starts from scratch.
func (c *Crawler) Reset() {
	c.visited.Reset()
}

// Crawl fetches up to MaxPages result pages starting at searchURL and
// hands each page's raw listings to onPage. Pages already visited by this
// crawler are skipped. It stops early on an empty page, a missing next
// link or context cancellation.
func (c *Crawler) Crawl(ctx context.Context, searchURL string, onPage func([]*models.RawListing)) error {
	src, err := DetectPortal(searchURL)
	if err != nil {
		return err
	}
	breaker := c.breakers[src]

	pageURL := searchURL
	for page := 1; page <= c.maxPages && pageURL != ""; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.visited.Add(pageURL) {
			c.logger.Debug("[crawler] Skipping visited page %s", pageURL)
			break
		}

		c.limiter.Wait(utils.DomainOf(pageURL))

		var html string
		op := fmt.Sprintf("%s page %d", src, page)
		err := breaker.Execute(func() error {
			return c.retry.Do(op, func() error {
				var ferr error
				html, ferr = c.fetcher.Fetch(ctx, pageURL)
				return ferr
			})
		})
		if err != nil {
			return fmt.Errorf("%s: fetch page %d: %w", src, page, err)
		}

		raws, next, err := c.extractor.Extract(src, pageURL, html)
		if err != nil {
			return fmt.Errorf("%s: extract page %d: %w", src, page, err)
		}
		c.logger.Info("[crawler] %s page %d: %d listings", src, page, len(raws))
		if len(raws) == 0 {
			break
		}
		onPage(raws)
		pageURL = next
	}
	return nil
}

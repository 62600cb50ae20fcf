package forecastapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// CatalogSnapshot is the set of selectable form values.
type CatalogSnapshot struct {
	Establishments []string  `json:"establishments"`
	LinenTypes     []string  `json:"linenTypes"`
	Articles       []string  `json:"articles"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Catalog caches the establishment, linen type and article lists. A failed
// refresh keeps serving the previous lists.
type Catalog struct {
	client   *Client
	interval time.Duration
	// MaxElapsed bounds the warm-up retries.
	MaxElapsed time.Duration

	mu   sync.RWMutex
	snap CatalogSnapshot
}

func NewCatalog(client *Client, interval time.Duration) *Catalog {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Catalog{client: client, interval: interval, MaxElapsed: 2 * time.Minute}
}

// retryable reports whether a failed catalog call may be attempted again.
func retryable(err error) bool {
	apiErr := AsError("catalog", err)
	switch apiErr.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

// Warm loads the catalog at startup, retrying transient failures with
// exponential backoff.
func (c *Catalog) Warm(ctx context.Context) error {
	operation := func() error {
		err := c.Refresh(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Printf("catalog: warm-up failed, retrying: %v", err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.MaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("warm catalog: %w", err)
	}
	return nil
}

// Refresh fetches the three lists concurrently and swaps them in only when
// all succeed.
func (c *Catalog) Refresh(ctx context.Context) error {
	var next CatalogSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.client.ListEstablishments(gctx)
		next.Establishments = v
		return err
	})
	g.Go(func() error {
		v, err := c.client.ListLinenTypes(gctx)
		next.LinenTypes = v
		return err
	})
	g.Go(func() error {
		v, err := c.client.ListArticles(gctx)
		next.Articles = v
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	next.UpdatedAt = time.Now()

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()
	return nil
}

// Run refreshes the catalog on a ticker until ctx is done.
func (c *Catalog) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("catalog: refresh failed, serving stale lists: %v", err)
			}
		}
	}
}

func (c *Catalog) Snapshot() CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CatalogSnapshot{
		Establishments: slices.Clone(c.snap.Establishments),
		LinenTypes:     slices.Clone(c.snap.LinenTypes),
		Articles:       slices.Clone(c.snap.Articles),
		UpdatedAt:      c.snap.UpdatedAt,
	}
}

func (c *Catalog) Establishments() []string { return c.Snapshot().Establishments }
func (c *Catalog) LinenTypes() []string     { return c.Snapshot().LinenTypes }
func (c *Catalog) Articles() []string       { return c.Snapshot().Articles }

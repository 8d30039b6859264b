// Package batch resolves many addresses at once, deduplicating them and pacing
// provider traffic with either a strict sequential discipline or a bounded
// worker pool.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/address"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"github.com/couchcryptid/reseller-geocoder/internal/resolver"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Mode selects the pacing discipline.
type Mode string

const (
	// Sequential resolves one address at a time and waits the configured delay
	// after every address that reached a provider.
	Sequential Mode = "sequential"
	// Pooled runs a fixed number of workers over a shared queue. Provider
	// pacing is left to the providers themselves.
	Pooled Mode = "pooled"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Sequential, Pooled:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid batch mode %q: must be %q or %q", s, Sequential, Pooled)
	}
}

// Resolver is the single-address resolution the controller fans out over.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolver.Resolution, error)
}

// Result is the outcome for one input record.
type Result struct {
	Address  string              // as submitted
	Query    string              // normalized form shared by duplicates
	Location *domain.Coordinates // nil when unresolved or skipped
	Source   string
	Err      error // last provider failure, or the context error for skipped records
}

// Report aggregates a batch. Results are in input order. Counters are per
// input record; Skipped counts records never attempted because the batch was
// cancelled.
type Report struct {
	Results   []Result
	Succeeded int
	Failed    int
	Skipped   int
	LastError error
}

// Located is one resolved entry of a batch.
type Located struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Located returns only the records that resolved, in input order.
func (r Report) Located() []Located {
	out := make([]Located, 0, r.Succeeded)
	for _, res := range r.Results {
		if res.Location != nil {
			out = append(out, Located{Address: res.Address, Lat: res.Location.Lat, Lng: res.Location.Lng})
		}
	}
	return out
}

// Controller resolves batches of addresses.
type Controller struct {
	resolver Resolver
	mode     Mode
	workers  int
	delay    time.Duration
	clock    clockwork.Clock
	progress func(done, total int)
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithMode selects the pacing discipline. The default is Pooled.
func WithMode(m Mode) Option {
	return func(c *Controller) { c.mode = m }
}

// WithWorkers sets the pool size for Pooled mode.
func WithWorkers(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithDelay sets the pause between provider-bound addresses in Sequential mode.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// WithClock sets the clock driving the sequential delay.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithProgress registers a callback invoked after each distinct address
// completes. Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(c *Controller) { c.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller over r.
func New(r Resolver, opts ...Option) *Controller {
	c := &Controller{
		resolver: r,
		mode:     Pooled,
		workers:  3,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		metrics:  observability.NewMetricsForTesting(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// outcome is the resolution of one distinct address.
type outcome struct {
	done bool
	res  resolver.Resolution
}

// ResolveMany resolves every distinct normalized address once and fans the
// result out to all records sharing it. Individual failures never abort the
// batch. On cancellation it returns the partial report together with
// ctx.Err().
func (c *Controller) ResolveMany(ctx context.Context, addresses []string) (Report, error) {
	start := c.clock.Now()

	keys, index := dedupe(addresses)
	outcomes := make([]outcome, len(keys))

	var err error
	switch c.mode {
	case Sequential:
		err = c.runSequential(ctx, keys, outcomes)
	default:
		err = c.runPooled(ctx, keys, outcomes)
	}

	report := assemble(addresses, keys, index, outcomes, err)

	c.metrics.BatchAddresses.WithLabelValues("succeeded").Add(float64(report.Succeeded))
	c.metrics.BatchAddresses.WithLabelValues("failed").Add(float64(report.Failed))
	c.metrics.BatchDuration.Observe(c.clock.Since(start).Seconds())

	attrs := []any{
		"mode", string(c.mode),
		"records", len(addresses),
		"distinct", len(keys),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	}
	if report.Skipped > 0 {
		attrs = append(attrs, "skipped", report.Skipped)
	}
	if report.LastError != nil {
		attrs = append(attrs, "last_error", report.LastError)
	}
	c.logger.Info("batch resolved", attrs...)

	return report, err
}

func (c *Controller) runSequential(ctx context.Context, keys []string, outcomes []outcome) error {
	report := c.reporter(len(keys))
	wait := false
	for i, key := range keys {
		if wait && c.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(c.delay):
			}
		}
		res, err := c.resolver.Resolve(ctx, key)
		if err != nil {
			return err
		}
		outcomes[i] = outcome{done: true, res: res}
		report()
		// Cache hits and blank input never reach a provider.
		wait = len(res.Attempts) > 0
	}
	return nil
}

func (c *Controller) runPooled(ctx context.Context, keys []string, outcomes []outcome) error {
	report := c.reporter(len(keys))
	g, gctx := errgroup.WithContext(ctx)

	queue := make(chan int)
	g.Go(func() error {
		defer close(queue)
		for i := range keys {
			select {
			case queue <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for range min(c.workers, max(len(keys), 1)) {
		g.Go(func() error {
			for i := range queue {
				res, err := c.resolver.Resolve(gctx, keys[i])
				if err != nil {
					return err
				}
				outcomes[i] = outcome{done: true, res: res}
				report()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// reporter returns a goroutine-safe completion counter feeding the progress callback.
func (c *Controller) reporter(total int) func() {
	var mu sync.Mutex
	done := 0
	return func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if c.progress != nil {
			c.progress(done, total)
		}
	}
}

// dedupe returns the distinct normalized addresses in first-seen order and,
// for every input record, the position of its key.
func dedupe(addresses []string) ([]string, []int) {
	seen := make(map[string]int, len(addresses))
	keys := make([]string, 0, len(addresses))
	index := make([]int, len(addresses))
	for i, a := range addresses {
		k := address.Normalize(a)
		pos, ok := seen[k]
		if !ok {
			pos = len(keys)
			seen[k] = pos
			keys = append(keys, k)
		}
		index[i] = pos
	}
	return keys, index
}

func assemble(addresses, keys []string, index []int, outcomes []outcome, runErr error) Report {
	report := Report{Results: make([]Result, len(addresses))}
	for i, a := range addresses {
		o := outcomes[index[i]]
		r := Result{Address: a, Query: keys[index[i]]}
		switch {
		case !o.done:
			r.Err = runErr
			report.Skipped++
		case o.res.Found:
			r.Location = o.res.Location()
			r.Source = o.res.Source
			report.Succeeded++
		default:
			r.Source = domain.GeoSourceUnresolved
			r.Err = o.res.LastErr
			report.Failed++
			if o.res.LastErr != nil {
				report.LastError = o.res.LastErr
			}
		}
		report.Results[i] = r
	}
	return report
}

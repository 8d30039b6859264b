package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"github.com/couchcryptid/reseller-geocoder/internal/resolver"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver answers from a table keyed by normalized address and counts
// calls per key.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[string]resolver.Resolution
	calls   map[string]int
	order   []string
	block   chan struct{} // when set, Resolve waits on it or ctx
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{answers: map[string]resolver.Resolution{}, calls: map[string]int{}}
}

func (f *fakeResolver) found(key string, lat, lng float64) *fakeResolver {
	f.answers[key] = resolver.Resolution{
		Query:       key,
		Coordinates: domain.Coordinates{Lat: lat, Lng: lng},
		Found:       true,
		Source:      "primary",
		Attempts:    []resolver.Attempt{{Provider: "primary", Query: key, Outcome: resolver.OutcomeFound}},
	}
	return f
}

func (f *fakeResolver) cached(key string, lat, lng float64) *fakeResolver {
	f.answers[key] = resolver.Resolution{
		Query:       key,
		Coordinates: domain.Coordinates{Lat: lat, Lng: lng},
		Found:       true,
		Source:      domain.GeoSourceCache,
	}
	return f
}

func (f *fakeResolver) failing(key string, err error) *fakeResolver {
	f.answers[key] = resolver.Resolution{
		Query:    key,
		Attempts: []resolver.Attempt{{Provider: "primary", Query: key, Outcome: resolver.OutcomeError, Err: err}},
		LastErr:  err,
	}
	return f
}

func (f *fakeResolver) Resolve(ctx context.Context, raw string) (resolver.Resolution, error) {
	f.mu.Lock()
	f.calls[raw]++
	f.order = append(f.order, raw)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return resolver.Resolution{Query: raw}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return resolver.Resolution{Query: raw}, err
	}
	if res, ok := f.answers[raw]; ok {
		return res, nil
	}
	return resolver.Resolution{Query: raw, Attempts: []resolver.Attempt{{Outcome: resolver.OutcomeNotFound}}}, nil
}

func (f *fakeResolver) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeResolver) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func testOptions(m *observability.Metrics, opts ...Option) []Option {
	return append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(m),
	}, opts...)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("sequential")
	require.NoError(t, err)
	assert.Equal(t, Sequential, m)

	m, err = ParseMode("pooled")
	require.NoError(t, err)
	assert.Equal(t, Pooled, m)

	_, err = ParseMode("parallel")
	assert.Error(t, err)
}

func TestResolveMany_Dedup(t *testing.T) {
	for _, mode := range []Mode{Sequential, Pooled} {
		t.Run(string(mode), func(t *testing.T) {
			fake := newFakeResolver().
				found("1 Main St, Springfield, IL", 39.78, -89.65).
				found("Rue de Rivoli 1, Paris", 48.86, 2.34)
			m := observability.NewMetricsForTesting()
			c := New(fake, testOptions(m, WithMode(mode))...)

			report, err := c.ResolveMany(context.Background(), []string{
				"1 Main St, Springfield, IL",
				"  1 Main St,  Springfield, IL\n",
				"Rue de Rivoli 1, Paris",
			})
			require.NoError(t, err)

			assert.Equal(t, 1, fake.callCount("1 Main St, Springfield, IL"))
			assert.Equal(t, 1, fake.callCount("Rue de Rivoli 1, Paris"))
			assert.Equal(t, 2, fake.totalCalls())

			require.Len(t, report.Results, 3)
			assert.Equal(t, report.Results[0].Location, report.Results[1].Location)
			assert.Equal(t, "  1 Main St,  Springfield, IL\n", report.Results[1].Address, "results keep the submitted text")
			assert.Equal(t, 3, report.Succeeded)
			assert.Zero(t, report.Failed)
			assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchAddresses.WithLabelValues("succeeded")))
		})
	}
}

func TestResolveMany_PartialFailure(t *testing.T) {
	errQuota := &domain.ProviderError{Provider: "primary", StatusCode: 402, Err: errors.New("quota exceeded")}
	for _, mode := range []Mode{Sequential, Pooled} {
		t.Run(string(mode), func(t *testing.T) {
			fake := newFakeResolver().
				found("A", 1, 1).
				failing("B", errQuota).
				found("C", 3, 3).
				found("D", 4, 4)
			c := New(fake, testOptions(observability.NewMetricsForTesting(), WithMode(mode))...)

			report, err := c.ResolveMany(context.Background(), []string{"A", "B", "C", "D"})
			require.NoError(t, err)

			assert.Equal(t, 3, report.Succeeded)
			assert.Equal(t, 1, report.Failed)
			assert.ErrorIs(t, report.LastError, errQuota)
			assert.Nil(t, report.Results[1].Location)
			assert.Equal(t, domain.GeoSourceUnresolved, report.Results[1].Source)

			located := report.Located()
			require.Len(t, located, 3)
			assert.Equal(t, Located{Address: "C", Lat: 3, Lng: 3}, located[1])
		})
	}
}

func TestResolveMany_ResultsInInputOrder(t *testing.T) {
	fake := newFakeResolver()
	inputs := make([]string, 20)
	for i := range inputs {
		key := string(rune('a' + i))
		inputs[i] = key
		fake.found(key, float64(i), float64(i))
	}
	c := New(fake, testOptions(observability.NewMetricsForTesting(), WithMode(Pooled), WithWorkers(5))...)

	report, err := c.ResolveMany(context.Background(), inputs)
	require.NoError(t, err)
	for i, r := range report.Results {
		assert.Equal(t, inputs[i], r.Address)
		require.NotNil(t, r.Location)
		assert.Equal(t, float64(i), r.Location.Lat)
	}
}

func TestResolveMany_Empty(t *testing.T) {
	c := New(newFakeResolver(), testOptions(observability.NewMetricsForTesting())...)
	report, err := c.ResolveMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Located())
}

func TestResolveMany_SequentialDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fake := newFakeResolver().found("A", 1, 1).found("B", 2, 2).found("C", 3, 3)
	c := New(fake, testOptions(observability.NewMetricsForTesting(),
		WithMode(Sequential),
		WithDelay(time.Second),
		WithClock(clock),
	)...)

	done := make(chan Report, 1)
	go func() {
		report, err := c.ResolveMany(context.Background(), []string{"A", "B", "C"})
		assert.NoError(t, err)
		done <- report
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, fake.totalCalls(), "second address must wait for the delay")

	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, fake.totalCalls())

	clock.Advance(time.Second)
	select {
	case report := <-done:
		assert.Equal(t, 3, report.Succeeded)
	case <-ctx.Done():
		t.Fatal("batch did not finish")
	}
	assert.Equal(t, []string{"A", "B", "C"}, fake.order)
}

func TestResolveMany_SequentialSkipsDelayAfterCacheHit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fake := newFakeResolver().cached("A", 1, 1).cached("B", 2, 2).cached("C", 3, 3)
	c := New(fake, testOptions(observability.NewMetricsForTesting(),
		WithMode(Sequential),
		WithDelay(time.Hour),
		WithClock(clock),
	)...)

	report, err := c.ResolveMany(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
}

func TestResolveMany_SequentialCancelDuringDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fake := newFakeResolver().found("A", 1, 1).found("B", 2, 2)
	c := New(fake, testOptions(observability.NewMetricsForTesting(),
		WithMode(Sequential),
		WithDelay(time.Minute),
		WithClock(clock),
	)...)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		report Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := c.ResolveMany(ctx, []string{"A", "B"})
		done <- result{report, err}
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	r := <-done
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, 1, r.report.Succeeded)
	assert.Equal(t, 1, r.report.Skipped)
	assert.Equal(t, 1, fake.totalCalls())
}

func TestResolveMany_PooledCancellation(t *testing.T) {
	fake := newFakeResolver()
	fake.block = make(chan struct{})
	c := New(fake, testOptions(observability.NewMetricsForTesting(), WithMode(Pooled), WithWorkers(2))...)

	inputs := []string{"A", "B", "C", "D", "E", "F"}
	ctx, cancel := context.WithCancel(context.Background())

	type result struct {
		report Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := c.ResolveMany(ctx, inputs)
		done <- result{report, err}
	}()

	require.Eventually(t, func() bool { return fake.totalCalls() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case r := <-done:
		assert.ErrorIs(t, r.err, context.Canceled)
		assert.Equal(t, len(inputs), r.report.Skipped)
		assert.LessOrEqual(t, fake.totalCalls(), 3, "workers stop pulling new work")
	case <-time.After(2 * time.Second):
		t.Fatal("pooled batch did not stop after cancellation")
	}
}

func TestResolveMany_Progress(t *testing.T) {
	fake := newFakeResolver().found("A", 1, 1).found("B", 2, 2)
	var mu sync.Mutex
	var seen [][2]int
	c := New(fake, testOptions(observability.NewMetricsForTesting(),
		WithMode(Pooled),
		WithProgress(func(done, total int) {
			mu.Lock()
			seen = append(seen, [2]int{done, total})
			mu.Unlock()
		}),
	)...)

	_, err := c.ResolveMany(context.Background(), []string{"A", "A", "B"})
	require.NoError(t, err)
	assert.ElementsMatch(t, [][2]int{{1, 2}, {2, 2}}, seen)
}

// countingProvider fails every query for one address and resolves the rest.
type countingProvider struct {
	mu    sync.Mutex
	calls map[string]int
	bad   string
}

func (p *countingProvider) Name() string { return "stub" }

func (p *countingProvider) Geocode(_ context.Context, q string) (domain.Coordinates, bool, error) {
	p.mu.Lock()
	p.calls[q]++
	p.mu.Unlock()
	if len(q) >= len(p.bad) && q[:len(p.bad)] == p.bad {
		return domain.Coordinates{}, false, &domain.ProviderError{Provider: "stub", StatusCode: 500, Err: errors.New("internal error")}
	}
	return domain.Coordinates{Lat: 10, Lng: 20}, true, nil
}

func TestResolveMany_WithResolverAndFailingAddress(t *testing.T) {
	p := &countingProvider{calls: map[string]int{}, bad: "Broken Rd"}
	r, err := resolver.New(p, nil,
		resolver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		resolver.WithMetrics(observability.NewMetricsForTesting()),
	)
	require.NoError(t, err)

	c := New(r, testOptions(observability.NewMetricsForTesting(), WithMode(Pooled), WithWorkers(3))...)
	inputs := []string{"1 Main St, Boston, MA", "Broken Rd 1, Nowhere", "Marina Bay, Singapore", "1 Main St, Boston, MA"}

	report, err := c.ResolveMany(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, len(inputs)-1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Error(t, report.LastError)
	assert.Contains(t, report.LastError.Error(), "internal error")
	assert.Equal(t, 1, p.calls["1 Main St, Boston, MA"], "duplicate address resolved once")
}

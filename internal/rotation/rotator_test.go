package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	quiet   = 100 * time.Millisecond
)

var epoch = time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)

func photo(id string) *core.ContentItem {
	return &core.ContentItem{
		ID:        id,
		Type:      core.ContentTypePhoto,
		URL:       "https://cdn.example.com/" + id + ".jpg",
		Season:    core.SeasonWinter,
		Status:    core.StatusActive,
		CreatedAt: epoch,
	}
}

func pool(ids ...string) []*core.ContentItem {
	items := make([]*core.ContentItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, photo(id))
	}
	return items
}

// spyFetcher counts calls and answers with respond
type spyFetcher struct {
	calls   atomic.Int32
	mu      sync.Mutex
	respond func(call int) ([]*core.ContentItem, error)
}

func fixedPool(items []*core.ContentItem) *spyFetcher {
	return &spyFetcher{respond: func(int) ([]*core.ContentItem, error) { return items, nil }}
}

func (f *spyFetcher) FetchActive(ctx context.Context, contentType core.ContentType, season core.Season, maxResults int) ([]*core.ContentItem, error) {
	call := int(f.calls.Add(1))
	f.mu.Lock()
	respond := f.respond
	f.mu.Unlock()
	return respond(call)
}

func (f *spyFetcher) setRespond(respond func(call int) ([]*core.ContentItem, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = respond
}

func (f *spyFetcher) Calls() int {
	return int(f.calls.Load())
}

// changeCounter counts state notifications
type changeCounter struct {
	n atomic.Int32
}

func (c *changeCounter) handle(State) { c.n.Add(1) }
func (c *changeCounter) Count() int  { return int(c.n.Load()) }

func testOptions(rotation, refresh time.Duration) Options {
	opts := DefaultOptions()
	opts.RotationInterval = rotation
	opts.RefreshInterval = refresh
	opts.Season = core.SeasonWinter
	return opts
}

func startRotator(t *testing.T, fetcher Fetcher, opts Options, extra ...Option) (*Rotator, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	options := append([]Option{WithClock(clock), WithLogger(logger.Discard())}, extra...)

	r, err := Start(context.Background(), fetcher, opts, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, clock
}

func waitLoaded(t *testing.T, r *Rotator) State {
	t.Helper()
	require.Eventually(t, func() bool {
		state := r.Snapshot()
		return !state.Loading && (state.Current != nil || state.Err != nil)
	}, waitFor, tick, "Initial fetch should complete")
	return r.Snapshot()
}

func currentID(r *Rotator) string {
	if current := r.Current(); current != nil {
		return current.ID
	}
	return ""
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		valid  bool
	}{
		{"Defaults", func(*Options) {}, true},
		{"Video with explicit season", func(o *Options) { o.ContentType = core.ContentTypeVideo; o.Season = core.SeasonAutumn }, true},
		{"Zero intervals disable timers", func(o *Options) { o.RotationInterval = 0; o.RefreshInterval = 0 }, true},
		{"Negative rotation interval", func(o *Options) { o.RotationInterval = -time.Second }, false},
		{"Negative refresh interval", func(o *Options) { o.RefreshInterval = -time.Minute }, false},
		{"Unknown content type", func(o *Options) { o.ContentType = "gif" }, false},
		{"Missing content type", func(o *Options) { o.ContentType = "" }, false},
		{"Unknown season", func(o *Options) { o.Season = "monsoon" }, false},
		{"Zero pool size", func(o *Options) { o.MaxPoolSize = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)

			err := opts.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, core.ErrInvalidOptions)
		})
	}

	t.Run("Invalid options are rejected at construction", func(t *testing.T) {
		opts := DefaultOptions()
		opts.RefreshInterval = -1
		_, err := New(fixedPool(pool("a")), opts)
		assert.ErrorIs(t, err, core.ErrInvalidOptions)

		_, err = New(nil, DefaultOptions())
		assert.ErrorIs(t, err, core.ErrInvalidOptions)
	})
}

func TestRotator_Rotation(t *testing.T) {
	t.Run("Pointer after k intervals is k mod L", func(t *testing.T) {
		const interval = 30 * time.Second
		r, clock := startRotator(t, fixedPool(pool("a", "b", "c")), testOptions(interval, 0))
		state := waitLoaded(t, r)
		require.Equal(t, 0, state.Index)

		for k := 1; k <= 7; k++ {
			clock.Advance(interval)
			want := k % 3
			require.Eventually(t, func() bool { return r.Snapshot().Index == want }, waitFor, tick, "after %d intervals", k)
		}
	})

	t.Run("Two item pool alternates every 30 seconds", func(t *testing.T) {
		r, clock := startRotator(t, fixedPool(pool("A", "B")), testOptions(30000*time.Millisecond, 0))
		waitLoaded(t, r)
		assert.Equal(t, "A", currentID(r), "t=0")

		clock.Advance(30000 * time.Millisecond)
		assert.Eventually(t, func() bool { return currentID(r) == "B" }, waitFor, tick, "t=30000")

		clock.Advance(30000 * time.Millisecond)
		assert.Eventually(t, func() bool { return currentID(r) == "A" }, waitFor, tick, "t=60000")
	})

	t.Run("First interval counts from the first pool", func(t *testing.T) {
		release := make(chan struct{})
		fetcher := &spyFetcher{respond: func(int) ([]*core.ContentItem, error) {
			<-release
			return pool("a", "b"), nil
		}}
		r, clock := startRotator(t, fetcher, testOptions(30*time.Second, 0))
		require.Eventually(t, func() bool { return fetcher.Calls() == 1 }, waitFor, tick)

		clock.Advance(20 * time.Second)
		close(release)
		waitLoaded(t, r)

		clock.Advance(10 * time.Second)
		assert.Never(t, func() bool { return r.Snapshot().Index != 0 }, quiet, tick, "First item is shown for a full interval")

		clock.Advance(20 * time.Second)
		assert.Eventually(t, func() bool { return currentID(r) == "b" }, waitFor, tick)
	})

	t.Run("Zero interval disables automatic advance", func(t *testing.T) {
		r, clock := startRotator(t, fixedPool(pool("a", "b")), testOptions(0, 0))
		waitLoaded(t, r)

		clock.Advance(24 * time.Hour)
		assert.Never(t, func() bool { return r.Snapshot().Index != 0 }, quiet, tick)
	})

	t.Run("Single item pool never advances", func(t *testing.T) {
		r, clock := startRotator(t, fixedPool(pool("only")), testOptions(time.Second, 0))
		waitLoaded(t, r)

		clock.Advance(time.Second)
		r.RotateNow()

		state := r.Snapshot()
		assert.Equal(t, 0, state.Index)
		assert.Equal(t, "only", state.Current.ID)
		assert.Nil(t, state.Next, "No next item for a single item pool")
		assert.NoError(t, state.Err)
	})

	t.Run("RotateNow wraps around", func(t *testing.T) {
		r, _ := startRotator(t, fixedPool(pool("a", "b", "c")), testOptions(0, 0))
		waitLoaded(t, r)

		var seen []string
		for i := 0; i < 4; i++ {
			r.RotateNow()
			seen = append(seen, currentID(r))
		}
		assert.Equal(t, []string{"b", "c", "a", "b"}, seen)
		assert.Equal(t, "c", r.Snapshot().Next.ID)
	})

	t.Run("Next is hidden when preloading is disabled", func(t *testing.T) {
		opts := testOptions(0, 0)
		opts.PreloadNext = false
		r, _ := startRotator(t, fixedPool(pool("a", "b")), opts)
		state := waitLoaded(t, r)

		assert.Equal(t, "a", state.Current.ID)
		assert.Nil(t, state.Next)
	})
}

func TestRotator_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Refresh resets the pointer to zero", func(t *testing.T) {
		fetcher := fixedPool(pool("a", "b", "c"))
		r, _ := startRotator(t, fetcher, testOptions(0, 0))
		waitLoaded(t, r)

		r.RotateNow()
		r.RotateNow()
		require.Equal(t, 2, r.Snapshot().Index)

		fetcher.setRespond(func(int) ([]*core.ContentItem, error) { return pool("x", "y"), nil })
		require.NoError(t, r.Refresh(ctx))

		state := r.Snapshot()
		assert.Equal(t, 0, state.Index)
		assert.Equal(t, "x", state.Current.ID)
		assert.Len(t, state.Pool, 2)
		assert.Equal(t, 2, fetcher.Calls())
	})

	t.Run("Scheduled refresh resets the pointer to zero", func(t *testing.T) {
		const refresh = 10 * time.Minute
		fetcher := fixedPool(pool("a", "b", "c"))
		r, clock := startRotator(t, fetcher, testOptions(0, refresh))
		waitLoaded(t, r)

		r.RotateNow()
		require.Equal(t, 1, r.Snapshot().Index)

		clock.Advance(refresh)
		assert.Eventually(t, func() bool { return fetcher.Calls() == 2 && r.Snapshot().Index == 0 }, waitFor, tick)
	})

	t.Run("Refresh fires exactly at the interval", func(t *testing.T) {
		fetcher := fixedPool(pool("a", "b"))
		r, clock := startRotator(t, fetcher, testOptions(0, 300000*time.Millisecond))
		waitLoaded(t, r)
		require.Equal(t, 1, fetcher.Calls())

		clock.Advance(299999 * time.Millisecond)
		assert.Never(t, func() bool { return fetcher.Calls() != 1 }, quiet, tick, "No fetch before the interval")

		clock.Advance(time.Millisecond)
		assert.Eventually(t, func() bool { return fetcher.Calls() == 2 }, waitFor, tick, "One fetch at the interval")
		assert.Never(t, func() bool { return fetcher.Calls() != 2 }, quiet, tick, "Exactly one fetch")
	})

	t.Run("Failed refresh keeps the last good pool and surfaces the error", func(t *testing.T) {
		fetcher := fixedPool(pool("a", "b"))
		r, _ := startRotator(t, fetcher, testOptions(0, 0))
		waitLoaded(t, r)
		r.RotateNow()

		outage := errors.New("store unreachable")
		fetcher.setRespond(func(int) ([]*core.ContentItem, error) { return nil, outage })

		err := r.Refresh(ctx)
		assert.ErrorIs(t, err, outage)

		state := r.Snapshot()
		assert.ErrorIs(t, state.Err, outage)
		assert.Equal(t, []*core.ContentItem{photo("a"), photo("b")}, state.Pool)
		assert.Equal(t, 1, state.Index, "Pointer is untouched by a failed refresh")
		assert.Equal(t, interfaces.StatusWarning, r.Health().Status)

		fetcher.setRespond(func(int) ([]*core.ContentItem, error) { return pool("c"), nil })
		require.NoError(t, r.Refresh(ctx))
		assert.NoError(t, r.Snapshot().Err)
		assert.Equal(t, "c", currentID(r))
	})

	t.Run("Empty refresh keeps the last good pool", func(t *testing.T) {
		fetcher := fixedPool(pool("a", "b"))
		r, _ := startRotator(t, fetcher, testOptions(0, 0))
		waitLoaded(t, r)

		fetcher.setRespond(func(int) ([]*core.ContentItem, error) { return []*core.ContentItem{}, nil })
		err := r.Refresh(ctx)
		assert.True(t, core.IsNoContent(err))
		assert.Equal(t, "a", currentID(r))
		assert.True(t, core.IsNoContent(r.Snapshot().Err))
	})

	t.Run("Manual refresh during an in-flight fetch runs a follow-up fetch", func(t *testing.T) {
		release := make(chan struct{})
		fetcher := &spyFetcher{respond: func(call int) ([]*core.ContentItem, error) {
			if call == 1 {
				<-release
				return pool("first"), nil
			}
			return pool("second"), nil
		}}
		r, _ := startRotator(t, fetcher, testOptions(0, 0))
		require.Eventually(t, func() bool { return fetcher.Calls() == 1 }, waitFor, tick)

		refreshed := make(chan error, 1)
		go func() { refreshed <- r.Refresh(ctx) }()

		assert.Never(t, func() bool { return fetcher.Calls() > 1 }, quiet, tick, "Only one fetch in flight")
		close(release)

		select {
		case err := <-refreshed:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("Refresh did not complete")
		}
		assert.Equal(t, 2, fetcher.Calls())
		assert.Equal(t, "second", currentID(r))
	})

	t.Run("Scheduled tick during an in-flight fetch is coalesced", func(t *testing.T) {
		release := make(chan struct{})
		fetcher := &spyFetcher{respond: func(call int) ([]*core.ContentItem, error) {
			if call == 1 {
				<-release
			}
			return pool("a"), nil
		}}
		r, clock := startRotator(t, fetcher, testOptions(0, time.Minute))
		require.Eventually(t, func() bool { return fetcher.Calls() == 1 }, waitFor, tick)

		clock.Advance(time.Minute)
		assert.Never(t, func() bool { return fetcher.Calls() > 1 }, quiet, tick)

		close(release)
		waitLoaded(t, r)
		assert.Never(t, func() bool { return fetcher.Calls() > 1 }, quiet, tick)
	})
}

func TestRotator_Errors(t *testing.T) {
	t.Run("Empty initial pool reports no content", func(t *testing.T) {
		r, _ := startRotator(t, fixedPool(nil), testOptions(time.Second, time.Minute))
		state := waitLoaded(t, r)

		require.Error(t, state.Err)
		assert.Contains(t, state.Err.Error(), "No photo content found")
		assert.True(t, core.IsNoContent(state.Err))
		assert.Nil(t, state.Current)
		assert.Nil(t, state.Next)
		assert.False(t, state.Loading)
		assert.Equal(t, interfaces.StatusError, r.Health().Status)
	})

	t.Run("Video rotator names its type", func(t *testing.T) {
		opts := testOptions(0, 0)
		opts.ContentType = core.ContentTypeVideo
		r, _ := startRotator(t, fixedPool(nil), opts)
		state := waitLoaded(t, r)
		assert.Contains(t, state.Err.Error(), "No video content found")
	})

	t.Run("Transport failure is surfaced as is without retry", func(t *testing.T) {
		denied := errors.New("permission denied")
		fetcher := &spyFetcher{respond: func(int) ([]*core.ContentItem, error) { return nil, denied }}
		r, clock := startRotator(t, fetcher, testOptions(time.Second, 0))
		state := waitLoaded(t, r)

		assert.Same(t, denied, state.Err)
		clock.Advance(time.Hour)
		assert.Never(t, func() bool { return fetcher.Calls() != 1 }, quiet, tick, "No automatic retry")
	})

	t.Run("Error state recovers on the next scheduled refresh", func(t *testing.T) {
		fetcher := fixedPool(nil)
		r, clock := startRotator(t, fetcher, testOptions(0, time.Minute))
		waitLoaded(t, r)

		fetcher.setRespond(func(int) ([]*core.ContentItem, error) { return pool("a"), nil })
		clock.Advance(time.Minute)
		assert.Eventually(t, func() bool { return currentID(r) == "a" && r.Snapshot().Err == nil }, waitFor, tick)
	})
}

func TestRotator_Close(t *testing.T) {
	t.Run("No updates or fetches after close", func(t *testing.T) {
		changes := &changeCounter{}
		fetcher := fixedPool(pool("a", "b", "c"))
		r, clock := startRotator(t, fetcher, testOptions(time.Second, time.Minute), WithChangeHandler(changes.handle))
		waitLoaded(t, r)

		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return r.Snapshot().Index == 1 }, waitFor, tick)

		require.NoError(t, r.Close())
		fetchesAtClose := fetcher.Calls()
		changesAtClose := changes.Count()

		for i := 0; i < 120; i++ {
			clock.Advance(time.Second)
		}
		r.RotateNow()
		assert.ErrorIs(t, r.Refresh(context.Background()), core.ErrClosed)

		assert.Never(t, func() bool {
			return fetcher.Calls() != fetchesAtClose || changes.Count() != changesAtClose
		}, quiet, tick)
		assert.Equal(t, 1, r.Snapshot().Index)
		assert.Equal(t, interfaces.StatusStopped, r.Health().Status)
	})

	t.Run("Late fetch result is dropped", func(t *testing.T) {
		release := make(chan struct{})
		changes := &changeCounter{}
		fetcher := &spyFetcher{respond: func(int) ([]*core.ContentItem, error) {
			<-release
			return pool("late"), nil
		}}
		r, _ := startRotator(t, fetcher, testOptions(0, 0), WithChangeHandler(changes.handle))
		require.Eventually(t, func() bool { return fetcher.Calls() == 1 }, waitFor, tick)

		require.NoError(t, r.Close())
		changesAtClose := changes.Count()
		close(release)

		assert.Never(t, func() bool { return changes.Count() != changesAtClose }, quiet, tick)
		assert.Nil(t, r.Snapshot().Current)
	})

	t.Run("Cancelling the start context stops the rotator", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		clock := clockwork.NewFakeClockAt(epoch)
		fetcher := fixedPool(pool("a", "b"))

		r, err := Start(ctx, fetcher, testOptions(time.Second, time.Minute), WithClock(clock), WithLogger(logger.Discard()))
		require.NoError(t, err)
		defer r.Close()
		waitLoaded(t, r)

		cancel()
		assert.ErrorIs(t, r.Refresh(context.Background()), core.ErrClosed)
		clock.Advance(time.Minute)
		assert.Never(t, func() bool { return fetcher.Calls() != 1 }, quiet, tick)
	})

	t.Run("Cancelled rotator rejects manual rotation and reports stopped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		changes := &changeCounter{}
		fetcher := fixedPool(pool("a", "b", "c"))

		r, err := Start(ctx, fetcher, testOptions(time.Second, time.Minute),
			WithClock(clockwork.NewFakeClockAt(epoch)), WithLogger(logger.Discard()), WithChangeHandler(changes.handle))
		require.NoError(t, err)
		defer r.Close()
		waitLoaded(t, r)

		cancel()
		require.Eventually(t, func() bool { return r.Health().Status == interfaces.StatusStopped }, waitFor, tick)
		changesAtCancel := changes.Count()

		r.RotateNow()
		assert.Equal(t, 0, r.Snapshot().Index, "Pointer is frozen after cancellation")
		assert.Equal(t, changesAtCancel, changes.Count())
		assert.NoError(t, r.Close())
		assert.ErrorIs(t, r.Start(context.Background()), core.ErrClosed)
	})

	t.Run("Lifecycle misuse", func(t *testing.T) {
		r, err := New(fixedPool(pool("a")), DefaultOptions(), WithLogger(logger.Discard()))
		require.NoError(t, err)
		assert.Equal(t, interfaces.StatusStopped, r.Health().Status)
		assert.Error(t, r.Refresh(context.Background()), "Refresh before start")

		require.NoError(t, r.Close())
		require.NoError(t, r.Close(), "Close is idempotent")
		assert.ErrorIs(t, r.Start(context.Background()), core.ErrClosed)
	})

	t.Run("Start twice fails", func(t *testing.T) {
		r, _ := startRotator(t, fixedPool(pool("a")), testOptions(0, 0))
		assert.Error(t, r.Start(context.Background()))
	})
}

func TestRotator_Independence(t *testing.T) {
	hero, heroClock := startRotator(t, fixedPool(pool("h1", "h2")), testOptions(time.Second, 0))
	about, _ := startRotator(t, fixedPool(pool("a1", "a2")), testOptions(time.Second, 0))
	waitLoaded(t, hero)
	waitLoaded(t, about)

	heroClock.Advance(time.Second)
	assert.Eventually(t, func() bool { return currentID(hero) == "h2" }, waitFor, tick)
	assert.Equal(t, "a1", currentID(about), "Instances do not share timers")
}

func TestRotator_Service(t *testing.T) {
	r, _ := startRotator(t, fixedPool(pool("a", "b")), testOptions(30*time.Second, time.Hour), WithName("hero"))
	waitLoaded(t, r)

	health := r.Health()
	assert.Equal(t, interfaces.StatusHealthy, health.Status)
	assert.Equal(t, 2, health.Details["pool_size"])

	info := r.Info()
	assert.Equal(t, "hero", info.Name)
	assert.Equal(t, "rotation", info.Type)

	caps := map[string]bool{}
	for _, c := range r.Capabilities() {
		caps[c.Type] = c.Supported
	}
	assert.True(t, caps[interfaces.CapabilityAutoRotate])
	assert.True(t, caps[interfaces.CapabilityPeriodicRefresh])
	assert.False(t, caps[interfaces.CapabilityPreload], "No preloader configured")

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, interfaces.StatusStopped, r.Health().Status)
}

func TestRotator_MaxPoolSize(t *testing.T) {
	ids := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		ids = append(ids, fmt.Sprintf("p%02d", i))
	}
	opts := testOptions(0, 0)
	opts.MaxPoolSize = 4

	var requested atomic.Int32
	fetcher := &spyFetcher{respond: func(int) ([]*core.ContentItem, error) { return pool(ids...), nil }}
	r, _ := startRotator(t, FetcherFunc(func(ctx context.Context, ct core.ContentType, s core.Season, n int) ([]*core.ContentItem, error) {
		requested.Store(int32(n))
		return fetcher.FetchActive(ctx, ct, s, n)
	}), opts)

	state := waitLoaded(t, r)
	assert.Equal(t, int32(4), requested.Load())
	assert.Len(t, state.Pool, 4, "Pool is bounded even if the fetcher over-delivers")
}

package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	clock := &FixedClock{Time: epoch.Add(time.Second)}
	l := NewMemoryLimiter(DefaultPolicy, 0).WithClock(clock)
	defer l.Close()
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.EqualValues(t, 10-i, res.Remaining)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "11th request in the window must be denied")
	assert.EqualValues(t, 0, res.Remaining)
	assert.Equal(t, epoch.Add(10*time.Second), res.Reset)

	other, _ := l.Allow(ctx, "5.6.7.8")
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(9 * time.Second)
	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed, "new window resets the count")
}

func TestMemoryLimiterSweep(t *testing.T) {
	clock := &FixedClock{Time: epoch}
	l := NewMemoryLimiter(DefaultPolicy, 0).WithClock(clock)
	defer l.Close()

	_, _ = l.Allow(context.Background(), "a")
	clock.Advance(time.Minute)
	_, _ = l.Allow(context.Background(), "b")
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.windows, "a")
	assert.Contains(t, l.windows, "b")
}

func TestMemoryLimiterCloseTwice(t *testing.T) {
	l := NewMemoryLimiter(DefaultPolicy, time.Millisecond)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestResultHeaders(t *testing.T) {
	res := newResult(DefaultPolicy, 11, epoch)
	h := http.Header{}
	res.SetHeaders(h, epoch.Add(3*time.Second))
	assert.Equal(t, "10", h.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", h.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "7", h.Get("Retry-After"))

	ok := newResult(DefaultPolicy, 1, epoch)
	h = http.Header{}
	ok.SetHeaders(h, epoch)
	assert.Equal(t, "9", h.Get("X-RateLimit-Remaining"))
	assert.Empty(t, h.Get("Retry-After"))
}

// fakeScripter emulates INCR on the script's single key.
type fakeScripter struct {
	mu     sync.Mutex
	counts map[string]int64
	keys   []string
	ttlArg any
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: map[string]int64{}}
}

func (f *fakeScripter) run(keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, keys[0])
	f.ttlArg = args[0]
	f.counts[keys[0]]++
	return redis.NewCmdResult(f.counts[keys[0]], nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.run(keys, args)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeScripter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisLimiterCountsPerWindow(t *testing.T) {
	fake := newFakeScripter()
	clock := &FixedClock{Time: epoch.Add(2 * time.Second)}
	l := newRedisLimiter(fake, DefaultPolicy, "").WithClock(clock)
	ctx := context.Background()

	var last *Result
	for i := 0; i < 11; i++ {
		res, err := l.Allow(ctx, "9.9.9.9")
		require.NoError(t, err)
		last = res
	}
	assert.False(t, last.Allowed)
	assert.Equal(t, epoch.Add(10*time.Second), last.Reset)

	clock.Advance(10 * time.Second)
	res, err := l.Allow(ctx, "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.Len(t, fake.keys, 12)
	assert.True(t, strings.HasPrefix(fake.keys[0], DefaultKeyPrefix+":9.9.9.9:"))
	assert.NotEqual(t, fake.keys[0], fake.keys[11], "each window gets its own key")
	assert.EqualValues(t, 10000, fake.ttlArg)
	assert.NoError(t, l.Close())
}

func TestScriptSetsExpiryOnFirstHit(t *testing.T) {
	assert.Contains(t, fixedWindowScript, `redis.call("INCR", KEYS[1])`)
	assert.Contains(t, fixedWindowScript, `redis.call("PEXPIRE", KEYS[1], ARGV[1])`)
}

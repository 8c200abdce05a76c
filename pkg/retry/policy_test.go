package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func countingPredicate(results ...interface{}) (Predicate, *int) {
	calls := 0
	return func(ctx context.Context) (bool, error) {
		i := calls
		calls++
		if i >= len(results) {
			return false, nil
		}
		switch r := results[i].(type) {
		case bool:
			return r, nil
		case error:
			return false, r
		case string:
			panic(r)
		}
		return false, nil
	}, &calls
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Delay)
}

func TestWaitUntilVisible(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset by peer")

	tests := []struct {
		name        string
		maxAttempts int
		results     []interface{}
		want        bool
		wantCalls   int
	}{
		{"first attempt succeeds", 3, []interface{}{true}, true, 1},
		{"succeeds on last attempt", 3, []interface{}{false, false, true}, true, 3},
		{"never succeeds", 3, []interface{}{false, false, false}, false, 3},
		{"errors are transient", 3, []interface{}{transient, transient, true}, true, 3},
		{"panics are transient", 3, []interface{}{"boom", true}, true, 2},
		{"mixed failures exhaust attempts", 3, []interface{}{transient, "boom", false, true}, false, 3},
		{"zero attempts still tries once", 0, []interface{}{false}, false, 1},
		{"success after attempt limit is not seen", 2, []interface{}{false, false, true}, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			predicate, calls := countingPredicate(tt.results...)
			p := Policy{MaxAttempts: tt.maxAttempts, Delay: 0}

			got := p.WaitUntilVisible(context.Background(), predicate)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestWaitUntilVisible_FixedDelayBetweenAttempts(t *testing.T) {
	t.Parallel()

	predicate, calls := countingPredicate(false, false, false)
	p := Policy{MaxAttempts: 3, Delay: 20 * time.Millisecond}

	start := time.Now()
	assert.False(t, p.WaitUntilVisible(context.Background(), predicate))
	elapsed := time.Since(start)

	assert.Equal(t, 3, *calls)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "two delays between three attempts")
}

func TestWaitUntilVisible_ObserverSeesFailures(t *testing.T) {
	t.Parallel()

	transient := errors.New("timeout")
	predicate, _ := countingPredicate(false, transient, true)

	var attempts []int
	var reasons []error
	p := Policy{MaxAttempts: 3}.WithObserver(func(attempt int, err error) {
		attempts = append(attempts, attempt)
		reasons = append(reasons, err)
	})

	assert.True(t, p.WaitUntilVisible(context.Background(), predicate))
	assert.Equal(t, []int{1, 2}, attempts)
	assert.ErrorIs(t, reasons[0], ErrNotVisible)
	assert.ErrorIs(t, reasons[1], transient)
}

func TestWaitUntilVisible_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	predicate := func(context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	}

	p := Policy{MaxAttempts: 5, Delay: time.Second}
	start := time.Now()
	assert.False(t, p.WaitUntilVisible(ctx, predicate))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestPolicyImplementsWaiter(t *testing.T) {
	t.Parallel()

	var w Waiter = DefaultPolicy()
	assert.NotNil(t, w)
}

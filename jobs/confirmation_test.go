package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (f *fakeExpirer) Expire(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeExpirer) expired() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

type fakeSweeper struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeSweeper) Sweep(ctx context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func TestExpireJobHandle(t *testing.T) {
	expirer := &fakeExpirer{}
	job := NewExpireJob(expirer, nil, nil)
	task, err := NewExpireTask("tok")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{"tok"}, expirer.expired())
}

func TestExpireJobBadPayload(t *testing.T) {
	expirer := &fakeExpirer{}
	job := NewExpireJob(expirer, nil, nil)

	for _, payload := range [][]byte{[]byte("{"), []byte(`{"token":""}`)} {
		err := job.Handle(context.Background(), asynq.NewTask(TaskConfirmationExpire, payload))
		require.ErrorIs(t, err, asynq.SkipRetry)
	}
	assert.Empty(t, expirer.expired())
}

func TestExpireJobReturnsStoreError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("pool exhausted")}
	job := NewExpireJob(expirer, nil, nil)
	task, err := NewExpireTask("tok")
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSweepJobHandle(t *testing.T) {
	sweeper := &fakeSweeper{removed: 3}
	job := NewSweepJob(sweeper, nil, nil)

	require.NoError(t, job.Handle(context.Background(), NewSweepTask()))
	assert.Equal(t, 1, sweeper.calls)

	sweeper.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), NewSweepTask()))
}

func TestExpireTaskID(t *testing.T) {
	assert.Equal(t, "confirmation:expire:abc", ExpireTaskID("abc"))
}

func TestClientScheduleExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.ScheduleExpiry(context.Background(), "tok", time.Hour))
	require.NoError(t, client.ScheduleExpiry(context.Background(), "tok", time.Hour))

	scheduled, err := mr.ZMembers("asynq:{default}:scheduled")
	require.NoError(t, err)
	assert.Equal(t, []string{ExpireTaskID("tok")}, scheduled)
}

func TestTimerSchedulerFires(t *testing.T) {
	expirer := &fakeExpirer{}
	scheduler := NewTimerScheduler(nil)
	scheduler.Bind(expirer)

	require.NoError(t, scheduler.ScheduleExpiry(context.Background(), "tok", 10*time.Millisecond))
	require.NoError(t, scheduler.ScheduleExpiry(context.Background(), "tok", 10*time.Millisecond))

	require.Eventually(t, func() bool {
		return len(expirer.expired()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, scheduler.Pending())
}

func TestTimerSchedulerRequiresBinding(t *testing.T) {
	scheduler := NewTimerScheduler(nil)
	require.Error(t, scheduler.ScheduleExpiry(context.Background(), "tok", time.Second))
}

func TestTimerSchedulerClose(t *testing.T) {
	expirer := &fakeExpirer{}
	scheduler := NewTimerScheduler(nil)
	scheduler.Bind(expirer)
	require.NoError(t, scheduler.ScheduleExpiry(context.Background(), "tok", 20*time.Millisecond))

	scheduler.Close()
	assert.Equal(t, 0, scheduler.Pending())
	require.Error(t, scheduler.ScheduleExpiry(context.Background(), "other", time.Millisecond))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, expirer.expired())
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"scheduled":0,"retry":0}`, rec.Body.String())
}

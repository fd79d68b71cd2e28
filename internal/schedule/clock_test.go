package schedule_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pathgen/page/internal/schedule"
)

func TestClock_Sync(t *testing.T) {
	local := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := schedule.NewClock(func() time.Time { return local })

	assert.Equal(t, local, clock.Now())

	offset := clock.Sync(local.Add(-5*time.Second), local)
	assert.Equal(t, -5*time.Second, offset)
	assert.Equal(t, -5*time.Second, clock.Offset())
	assert.Equal(t, local.Add(-5*time.Second), clock.Now())
}

func TestClock_SkewDelaysUnlock(t *testing.T) {
	serverNow := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	openAt := serverNow.Add(3 * time.Second).Format(time.RFC3339)

	// The client clock runs 5s ahead of the server.
	local := serverNow.Add(5 * time.Second)
	clock := schedule.NewClock(func() time.Time { return local })
	clock.Sync(serverNow, local)

	assert.False(t, schedule.Before(local, openAt), "raw client clock would already unlock")
	assert.True(t, schedule.Before(clock.Now(), openAt), "canonical clock keeps the topic locked")

	local = local.Add(3 * time.Second)
	assert.False(t, schedule.Before(clock.Now(), openAt))
}

func TestClock_ConcurrentAccess(t *testing.T) {
	clock := schedule.NewClock(nil)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.SetOffset(time.Duration(i) * time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_ = clock.Now()
		}()
	}
	wg.Wait()
}

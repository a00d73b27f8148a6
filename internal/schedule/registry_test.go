package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAfterDailySlot(t *testing.T) {
	t.Parallel()

	// 2026-03-10 is a Tuesday.
	after := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 2 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), next)

	// Past today's slot, the next fire is tomorrow.
	next, err = NextAfter("0 2 * * *", after.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next)
}

func TestNextAfterRejectsMalformedExpression(t *testing.T) {
	t.Parallel()

	_, err := NextAfter("not a schedule", time.Now())
	require.Error(t, err)
}

func TestCronRegistryRegisterAndFire(t *testing.T) {
	t.Parallel()

	reg := NewCronRegistry()
	defer reg.Close()

	fired := make(chan struct{}, 4)
	h, err := reg.Register("@every 100ms", func() { fired <- struct{}{} })
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer never fired")
	}

	reg.Cancel(h)
}

func TestCronRegistryRejectsMalformedExpression(t *testing.T) {
	t.Parallel()

	reg := NewCronRegistry()
	defer reg.Close()

	_, err := reg.Register("61 25 * * *", func() {})
	require.Error(t, err)
}

func TestCronRegistryCancelStopsFiring(t *testing.T) {
	t.Parallel()

	reg := NewCronRegistry()
	defer reg.Close()

	fired := make(chan struct{}, 64)
	h, err := reg.Register("@every 50ms", func() { fired <- struct{}{} })
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("timer never fired")
	}

	reg.Cancel(h)
	// Drain anything already in flight, then expect silence.
	time.Sleep(100 * time.Millisecond)
	for len(fired) > 0 {
		<-fired
	}
	select {
	case <-fired:
		t.Fatal("timer fired after cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

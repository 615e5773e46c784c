package adapters_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
)

func TestExecutorAdapterClockAndSubmit(t *testing.T) {
	mock := clock.NewMock()
	ea := adapters.NewExecutorAdapter(2, mock, zaptest.NewLogger(t))

	start := ea.Now()
	mock.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, ea.Now().Sub(start))

	done := make(chan struct{})
	require.NoError(t, ea.Submit(func() { close(done) }))
	<-done

	ea.Close()
	assert.ErrorIs(t, ea.Submit(func() {}), api.ErrSchedulerClosed)
}

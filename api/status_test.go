package api_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-net/api"
)

func TestStatusIsDone(t *testing.T) {
	assert.True(t, api.StatusFinish.IsDone())
	assert.True(t, api.StatusFinishSync.IsDone())
	for _, s := range []api.Status{api.StatusReset, api.StatusTimeout, api.StatusCancel} {
		assert.False(t, s.IsDone(), s.String())
	}
	assert.Equal(t, "unknown", api.Status(42).String())
}

func TestErrorCodeAndUnwrap(t *testing.T) {
	cause := errors.New("bind: address in use")
	err := api.NewError(api.ErrCodeConfig, "configure listener").WithContext("host", "a").Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, api.ErrCodeConfig, api.CodeOf(err))
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(cause))
	assert.Equal(t, api.ErrCodeOK, api.CodeOf(nil))
	assert.Contains(t, err.Error(), "address in use")
}

package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/hioload-net/internal/logging"
)

func TestLoggerNamedAfterSubsystem(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(nil)

	logging.Logger("reactor").Info("pass")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "reactor", entries[0].LoggerName)
	}
}

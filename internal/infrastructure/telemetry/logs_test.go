package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}
	log := zap.New(core).With(zap.String("tenant_id", "t1"))

	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept too")

	assert.Equal(t, 2, logs.Len())
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.Equal(t, "t1", logs.All()[0].ContextMap()["tenant_id"])
}

package logx

import (
	"bytes"
	"testing"

	"github.com/pricewatch/intake-core/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+972******67", MaskPhone("+972501234567"))
	assert.Equal(t, "***", MaskPhone("+1234"))
}

func TestInitProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init(LoggerOpts{Environment: core.Testing, Output: &bytes.Buffer{}}) })

	Debug().Msg("hidden")
	Info().Str("stage", "welcome").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"stage":"welcome"`)
}

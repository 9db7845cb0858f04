package main

import (
	"bytes"
	"testing"

	"message-store/server/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_JSON(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("k", "v").Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"message":"shown"`)
	require.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
}

func TestSetupLogger_BadLevel(t *testing.T) {
	require.Error(t, setupLogger(config.LoggingConfig{Level: "loud", Format: "json"}, &bytes.Buffer{}))
}

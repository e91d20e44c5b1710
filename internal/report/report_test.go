package report_test

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campusnav/internal/report"
)

func TestSetup(t *testing.T) {
	t.Run("empty dsn is a no-op client", func(t *testing.T) {
		require.NoError(t, report.Setup("", "test", "dev"))
		report.Error(errors.New("ignored"), report.Options{Tags: map[string]string{"component": "route"}})
		report.Flush()
	})

	t.Run("valid dsn", func(t *testing.T) {
		require.NoError(t, report.Setup("https://public@sentry.example.com/1", "test", "dev"))
		report.Flush()
	})

	t.Run("malformed dsn", func(t *testing.T) {
		require.Error(t, report.Setup("::not a dsn", "test", "dev"))
	})
}

func TestError_Nil(t *testing.T) {
	require.NotPanics(t, func() {
		report.Error(nil, report.Options{Level: sentry.LevelWarning})
	})
}

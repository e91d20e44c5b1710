// Package report forwards operational errors to Sentry. Without a DSN the
// Sentry client is a no-op, so callers report unconditionally.
package report

import (
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
)

// Setup initialises the global Sentry client and tags the scope.
func Setup(dsn, env, version string) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     version,
	}); err != nil {
		return err
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("app_version", version)
		scope.SetTag("go_version", runtime.Version())
		scope.SetContext("host_info", map[string]interface{}{
			"hostname": hostname(),
		})
	})
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Flush waits for buffered events to be sent.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// Options carries optional tags and context for an error report.
type Options struct {
	Tags  map[string]string
	Extra map[string]interface{}
	Level sentry.Level
}

// Error reports err with opts. A nil err is ignored.
func Error(err error, opts Options) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range opts.Tags {
			scope.SetTag(k, v)
		}
		if opts.Extra != nil {
			scope.SetContext("extra", opts.Extra)
		}
		level := opts.Level
		if level == "" {
			level = sentry.LevelError
		}
		scope.SetLevel(level)
		sentry.CaptureException(err)
	})
}

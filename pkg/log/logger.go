package log

import (
	"io"
	"sync"

	"github.com/rs/zerolog"

	scierrors "github.com/YuminosukeSato/shapgo/pkg/errors"
)

var (
	providerMu     sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

// SetupLogger installs a zerolog provider writing to w as the global provider
// and routes library warnings (pkg/errors.Warn) through it.
func SetupLogger(w io.Writer, level Level) LoggerProvider {
	provider := NewZerologProviderWithWriter(w, level)
	SetProvider(provider)

	warnLogger := provider.GetLoggerWithName("warnings")
	scierrors.SetZerologWarnFunc(func(warning error) {
		if m, ok := warning.(zerolog.LogObjectMarshaler); ok {
			warnLogger.Warn(warning.Error(), "warning", m)
			return
		}
		warnLogger.Warn(warning.Error())
	})
	return provider
}

// SetProvider replaces the global provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = p
}

// GetLogger returns the global provider's default logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a component logger from the global provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}

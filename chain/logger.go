package chain

import "github.com/vocdoni/mpn-executor/log"

// leveledLogger routes retryablehttp logs to the executor logger.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...any) {
	log.Warnw(msg, keysAndValues...)
}

func (leveledLogger) Info(msg string, keysAndValues ...any) {
	log.Debugw(msg, keysAndValues...)
}

func (leveledLogger) Debug(msg string, keysAndValues ...any) {
	log.Debugw(msg, keysAndValues...)
}

func (leveledLogger) Warn(msg string, keysAndValues ...any) {
	log.Warnw(msg, keysAndValues...)
}

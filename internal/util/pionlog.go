package util

import (
	"fmt"

	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logging onto the pterm logger.
// pion is noisy, so its info and debug output are demoted one level.
type PionLoggerFactory struct{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l pionLogger) tag(msg string) string { return "[pion/" + l.scope + "] " + msg }

func (l pionLogger) Trace(msg string) { LogTrace("%s", l.tag(msg)) }
func (l pionLogger) Tracef(format string, args ...interface{}) {
	LogTrace("%s", l.tag(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Debug(msg string) { LogTrace("%s", l.tag(msg)) }
func (l pionLogger) Debugf(format string, args ...interface{}) {
	LogTrace("%s", l.tag(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Info(msg string) { LogDebug("%s", l.tag(msg)) }
func (l pionLogger) Infof(format string, args ...interface{}) {
	LogDebug("%s", l.tag(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Warn(msg string) { LogWarning("%s", l.tag(msg)) }
func (l pionLogger) Warnf(format string, args ...interface{}) {
	LogWarning("%s", l.tag(fmt.Sprintf(format, args...)))
}

func (l pionLogger) Error(msg string) { LogError("%s", l.tag(msg)) }
func (l pionLogger) Errorf(format string, args ...interface{}) {
	LogError("%s", l.tag(fmt.Sprintf(format, args...)))
}

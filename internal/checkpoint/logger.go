package checkpoint

import (
	"fmt"
	"strings"

	"github.com/PorticoEstate/matrikkel-sub000/internal/logger"
	"github.com/dgraph-io/badger/v4"
)

// badgerLogger routes badger's printf-style logging into the structured log.
// Badger is chatty at info level, so info and debug go to debug.
type badgerLogger struct {
	log *logger.Logger
}

// NewLogger adapts log for use as Options.Logger.
func NewLogger(log *logger.Logger) badger.Logger {
	return badgerLogger{log: log.With(map[string]interface{}{"component": "checkpoint"})}
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(message(format, args), nil, nil)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(message(format, args), nil)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(message(format, args), nil)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(message(format, args), nil)
}

func message(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

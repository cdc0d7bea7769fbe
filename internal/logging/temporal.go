package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	tlog "go.temporal.io/sdk/log"
)

// TemporalLogger routes Temporal SDK logs through logrus.
type TemporalLogger struct {
	entry *logrus.Entry
}

var _ tlog.Logger = (*TemporalLogger)(nil)

func NewTemporalLogger(log logrus.FieldLogger) *TemporalLogger {
	return &TemporalLogger{entry: log.WithField("component", "temporal")}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Info(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Error(msg)
}

// fields pairs up alternating key/value arguments. A trailing key without a
// value is kept under "extra".
func fields(keyvals []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			out["extra"] = key
			break
		}
		out[key] = keyvals[i+1]
	}
	return out
}

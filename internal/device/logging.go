package device

import (
	"fmt"
	"io"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// levelLogger adapts a logrus entry to paho's Logger interface at a fixed level.
type levelLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

func (l levelLogger) Println(v ...interface{}) {
	l.entry.Log(l.level, fmt.Sprint(v...))
}

func (l levelLogger) Printf(format string, v ...interface{}) {
	l.entry.Logf(l.level, format, v...)
}

// ConfigureLibraryLogging routes paho's package-level loggers through a
// logrus JSON logger writing to w. Library debug chatter only appears when
// the service runs at debug level.
func ConfigureLibraryLogging(w io.Writer, level slog.Level) {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrusLevel(level))

	entry := logrus.NewEntry(l).WithField("component", "mqtt")
	mqtt.CRITICAL = levelLogger{entry: entry, level: logrus.ErrorLevel}
	mqtt.ERROR = levelLogger{entry: entry, level: logrus.ErrorLevel}
	mqtt.WARN = levelLogger{entry: entry, level: logrus.WarnLevel}
	mqtt.DEBUG = levelLogger{entry: entry, level: logrus.DebugLevel}
}

func logrusLevel(level slog.Level) logrus.Level {
	switch {
	case level <= slog.LevelDebug:
		return logrus.DebugLevel
	case level <= slog.LevelInfo:
		return logrus.InfoLevel
	case level <= slog.LevelWarn:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

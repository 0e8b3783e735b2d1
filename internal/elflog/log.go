// Package elflog is the structured-logging wrapper every other
// package in this module logs through, backed by logrus so fields come
// out as structured key=value pairs instead of formatted strings.
package elflog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("GOELF_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// SetVerbose raises the log level to Debug, wired to the CLI's -v flag.
func SetVerbose(v bool) {
	if v {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Debug logs msg with the given alternating key/value pairs at debug
// level (only visible with GOELF_DEBUG or -v).
func Debug(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Debug(msg) }

// Info logs msg at info level.
func Info(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Info(msg) }

// Warn logs msg at warn level.
func Warn(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Warn(msg) }

// Error logs msg at error level.
func Error(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Error(msg) }

package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

func ConsoleLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// FileLogger writes JSON lines to path and text to stderr. The caller closes
// the returned file on shutdown.
func FileLogger(level logrus.Level, path string) (*os.File, *logrus.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(f)
	l.AddHook(&consoleHook{out: os.Stderr, formatter: &logrus.TextFormatter{FullTimestamp: true}})
	return f, l, nil
}

// Nop discards everything.
func Nop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type consoleHook struct {
	out       io.Writer
	formatter logrus.Formatter
}

func (h *consoleHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *consoleHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.out.Write(b)
	return err
}

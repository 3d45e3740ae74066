package logger

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
	mu     sync.Mutex
)

// Init (re)configures the process logger. Unknown levels fall back to info,
// any format other than "text" produces JSON.
func Init(level, format string) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()
	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("level", level).Warn("Unknown log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	logger = l
	return l
}

func Get() *logrus.Logger {
	once.Do(func() {
		mu.Lock()
		initialised := logger != nil
		mu.Unlock()
		if !initialised {
			Init("info", "json")
		}
	})
	mu.Lock()
	defer mu.Unlock()
	return logger
}

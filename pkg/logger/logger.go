package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var ginOnce sync.Once

// InitLogger builds the logrus entry handed to long-lived components. The first
// call also decides gin's mode: debug level keeps gin's route dump and debug
// output, anything else silences it.
func InitLogger(logLevel string, component string) *logrus.Entry {
	formattedLogger := logrus.New()
	formattedLogger.Out = os.Stderr

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Error("Error parsing log level, using: info")
		level = logrus.InfoLevel
	}

	formattedLogger.Level = level
	formattedLogger.SetReportCaller(level == logrus.DebugLevel)
	formattedLogger.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return fmt.Sprintf("%s()", filepath.Base(f.Function)), fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		},
	}
	log := logrus.NewEntry(formattedLogger).WithField("component", component)
	ginOnce.Do(func() {
		if level == logrus.DebugLevel {
			gin.DefaultWriter = log.Writer()
			gin.SetMode(gin.DebugMode)
		} else {
			gin.DefaultWriter = io.Discard
			gin.SetMode(gin.ReleaseMode)
		}
	})

	return log
}

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}

package logcfg

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Setup configures logrus: level from configuration, timestamped text
// output, and rotation of the on-disk log file via lumberjack.
func Setup(level string) {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logrus.SetLevel(logLevel)

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	mw := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   "vendibot.log",
		MaxSize:    50, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	})
	logrus.SetOutput(mw)
}

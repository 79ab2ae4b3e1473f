package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

const defaultLevel = logrus.InfoLevel

// Logrus builds component loggers sharing one level and output.
type Logrus struct {
	level  string
	output io.Writer
}

// NewLogrus creates a new logrus factory
func NewLogrus(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, output: output}
}

// Get returns a logger tagged with the component name. Unknown levels log at info.
func (l *Logrus) Get(component string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = defaultLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(l.output)

	return log.WithFields(logrus.Fields{
		"Context": component,
	})
}

// Discard returns a logger that drops everything, for callers passing no logger.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

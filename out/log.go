package out

import (
	"fmt"
	"io"
	"log"
)

// Logger prefixes each line with its level, like "[info] Server started on port: 52001".
// It satisfies apm.Logger so it can be handed to the tracer as well.
type Logger struct {
	*log.Logger
	verbose bool
}

func NewLogger(w io.Writer, verbose bool) *Logger {
	return &Logger{
		Logger:  log.New(w, "", log.Ldate|log.Ltime|log.Lshortfile),
		verbose: verbose,
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Output(2, fmt.Sprintf("[info] "+format, args...))
}

// Debugf only writes when the logger is verbose.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.verbose {
		l.Output(2, fmt.Sprintf("[debug] "+format, args...))
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Output(2, fmt.Sprintf("[error] "+format, args...))
}

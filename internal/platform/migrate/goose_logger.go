package migrate

import (
	"fmt"
	"log/slog"
	"os"
)

// gooseSlogLogger routes goose's printf-style output through slog.
type gooseSlogLogger struct {
	logger *slog.Logger
}

func (l gooseSlogLogger) Printf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Info("goose", "msg", fmt.Sprintf(format, v...))
}

func (l gooseSlogLogger) Fatalf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Error("goose fatal", "msg", fmt.Sprintf(format, v...))
	}
	os.Exit(1)
}

// Pacote logger expõe o logger estruturado (slog JSON) compartilhado pelos binários.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	defaultLogger = New(os.Stdout, slog.LevelInfo)
)

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func L() *slog.Logger {
	return defaultLogger
}

func SetLevel(level slog.Level) {
	defaultLogger = New(os.Stdout, level)
}

// Substituir troca o logger compartilhado e devolve a função que restaura o anterior.
func Substituir(l *slog.Logger) (restaurar func()) {
	anterior := defaultLogger
	defaultLogger = l
	return func() { defaultLogger = anterior }
}

// ParseLevel aceita os nomes usuais (debug, info, warn, error); valores desconhecidos caem em info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}

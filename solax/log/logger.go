package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Logger is an io.Writer over a log file that can be reopened for rotation.
type Logger struct {
	logFile  *os.File
	filename string
	logMutex sync.Mutex
}

var (
	logger *Logger
)

func GetLogger() *Logger {
	return logger
}

func SetLogger(l *Logger) {
	if logger != nil {
		logger.Close()
	}
	logger = l
}

// NewLogger opens filename in append mode.
func NewLogger(filename string) (*Logger, error) {
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}
	return &Logger{
		logFile:  logFile,
		filename: filename,
	}, nil
}

func (l *Logger) Write(p []byte) (int, error) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return len(p), nil
	}
	return l.logFile.Write(p)
}

func (l *Logger) Close() {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}
}

// Rotate closes and reopens the log file
func (l *Logger) Rotate() error {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return nil
	}
	_ = l.logFile.Close()

	logFile, err := os.OpenFile(l.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		l.logFile = nil
		return fmt.Errorf("ログファイルを再オープンできませんでした: %w", err)
	}
	l.logFile = logFile
	return nil
}

// NewHandler returns the text handler used for every log record.
func NewHandler(w io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup opens filename, installs it as the global logger and makes it the
// destination of slog's default logger. An empty filename logs to stderr.
func Setup(filename string, debug bool) error {
	var w io.Writer = os.Stderr
	if filename != "" {
		l, err := NewLogger(filename)
		if err != nil {
			return err
		}
		SetLogger(l)
		w = l
	}
	slog.SetDefault(slog.New(NewHandler(w, debug)))
	return nil
}

// HandleRotateSignal reopens the global log file on every SIGHUP until ctx ends.
func HandleRotateSignal(ctx context.Context) {
	rotateSignalCh := make(chan os.Signal, 1)
	signal.Notify(rotateSignalCh, syscall.SIGHUP)
	go func() {
		defer signal.Stop(rotateSignalCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-rotateSignalCh:
				l := GetLogger()
				if l == nil {
					continue
				}
				slog.Info("SIGHUPを受信しました。ログファイルをローテーションします...")
				if err := l.Rotate(); err != nil {
					_, _ = fmt.Fprintf(os.Stderr, "ログローテーションエラー: %v\n", err)
				}
			}
		}
	}()
}

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"users-api/internal/worker"
)

const (
	errorLogFile    = "error.log"
	combinedLogFile = "combined.log"

	defaultMaxSizeMB  = 5
	defaultMaxBackups = 5
	queueSize         = 1024
)

// Options describes where and what the service logger writes.
type Options struct {
	// Level is the minimum level for the combined file and the console.
	Level slog.Level
	// Dir holds error.log and combined.log; created if missing.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	// Console enables the colorized console sink.
	Console    bool
	ConsoleOut io.Writer
	// OnPanic is called if a file write panics inside the async worker.
	OnPanic func(recovered any)
}

// Service is the process-wide logger. File sinks are written asynchronously;
// Close flushes pending records and releases the files.
type Service struct {
	*SlogLogger
	pool  worker.Pool
	files []io.Closer

	closeOnce sync.Once
	closeErr  error
}

// ParseLevel maps debug|info|warn|error (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func New(opts Options) (*Service, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = defaultMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", opts.Dir, err)
	}

	poolOpts := []worker.Option{worker.WithQueueSize(queueSize)}
	if opts.OnPanic != nil {
		poolOpts = append(poolOpts, worker.WithPanicHandler(opts.OnPanic))
	}
	s := &Service{pool: worker.NewPool(1, poolOpts...)}

	errFile := s.rotating(filepath.Join(opts.Dir, errorLogFile), opts)
	allFile := s.rotating(filepath.Join(opts.Dir, combinedLogFile), opts)

	handlers := []slog.Handler{
		slog.NewJSONHandler(errFile, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewJSONHandler(allFile, &slog.HandlerOptions{Level: opts.Level}),
	}
	if opts.Console {
		out := opts.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		handlers = append(handlers, newConsoleHandler(out, opts.Level))
	}

	s.SlogLogger = NewSlogLogger(slog.New(slogmulti.Fanout(handlers...)))
	return s, nil
}

func (s *Service) rotating(path string, opts Options) io.Writer {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	s.files = append(s.files, lj)
	return &asyncWriter{w: lj, pool: s.pool}
}

// Close drains queued records and closes the log files. Later calls return
// the first result.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.pool.Stop()
		for _, f := range s.files {
			if err := f.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// FatalExit wraps exit so queued records, including the one describing the
// failure, reach the files before the process terminates.
// Must not be called from the log worker itself: Close waits for it.
func (s *Service) FatalExit(exit func(code int)) func(code int) {
	return func(code int) {
		_ = s.Close()
		exit(code)
	}
}

// asyncWriter hands each write to the pool and returns immediately.
// Records are dropped when the queue is full.
type asyncWriter struct {
	w    io.Writer
	pool worker.Pool
}

func (a *asyncWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	a.pool.TrySubmit(func() {
		_, _ = a.w.Write(buf)
	})
	return len(p), nil
}

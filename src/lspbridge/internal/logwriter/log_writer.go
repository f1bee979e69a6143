// Package logwriter adapts free-form process output into structured log entries.
package logwriter

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Writer is an io.WriteCloser that logs each complete line written to it.
type Writer struct {
	mu      sync.Mutex
	logger  *zap.Logger
	level   zapcore.Level
	pending []byte
}

// New creates a writer that sends each line to the given logger at the given level.
// A trailing partial line is held until it is completed or the writer is closed.
func New(logger *zap.SugaredLogger, level zapcore.Level) *Writer {
	return &Writer{
		logger: logger.Desugar(),
		level:  level,
	}
}

// Write implements the io.Writer interface by sending data to the given logger.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}

	return len(p), nil
}

// Close flushes any partial line.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.emit(w.pending)
	w.pending = nil
	return nil
}

func (w *Writer) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if ce := w.logger.Check(w.level, string(line)); ce != nil {
		ce.Write()
	}
}

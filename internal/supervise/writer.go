package supervise

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// lineWriter tags every line of a child's output with the service name so
// interleaved service output stays attributable. Partial lines are held
// until their newline arrives; concurrent children share the underlying
// writer, so each write of a full line is a single Write call.
type lineWriter struct {
	name string
	out  io.Writer

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(name string, out io.Writer) *lineWriter {
	return &lineWriter{name: name, out: out}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// No complete line yet; keep the remainder buffered.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if _, err := fmt.Fprintf(w.out, "[%s] %s", w.name, line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes any buffered partial line, terminating it. Called once the
// child has exited.
func (w *lineWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}
	_, err := fmt.Fprintf(w.out, "[%s] %s\n", w.name, w.buf.String())
	w.buf.Reset()
	return err
}

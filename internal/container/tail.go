package container

import (
	"bytes"
	"strings"
	"sync"
)

// TailBuffer is an io.Writer that keeps only the last N complete lines
// written to it. A trailing partial line is kept until the next newline or
// until String is called.
type TailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

// NewTailBuffer keeps at most n lines; n <= 0 means 40.
func NewTailBuffer(n int) *TailBuffer {
	if n <= 0 {
		n = 40
	}
	return &TailBuffer{max: n}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = append(t.partial, p...)
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			break
		}
		t.push(strings.TrimRight(string(t.partial[:idx]), "\r"))
		t.partial = t.partial[idx+1:]
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (t *TailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.lines...)
	if len(t.partial) > 0 {
		out = append(out, string(t.partial))
		if len(out) > t.max {
			out = out[len(out)-t.max:]
		}
	}
	return out
}

func (t *TailBuffer) String() string { return strings.Join(t.Lines(), "\n") }

func (t *TailBuffer) push(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

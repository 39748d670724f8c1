package backup

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const maxLogBytes = 64 << 10

// logBuffer accumulates program output as lines stamped with the time since
// the job started. Only the newest maxLogBytes are kept.
type logBuffer struct {
	mu      sync.Mutex
	start   time.Time
	now     func() time.Time
	keep    bool
	b       strings.Builder
	partial string
}

func newLogBuffer(start time.Time, now func() time.Time, keep bool) *logBuffer {
	return &logBuffer{start: start, now: now, keep: keep}
}

func elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("T+%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// Write appends complete lines from chunk; a trailing partial line waits
// for the next chunk.
func (l *logBuffer) Write(chunk []byte) {
	if !l.keep {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	text := l.partial + string(chunk)
	lines := strings.Split(text, "\n")
	l.partial = lines[len(lines)-1]
	stamp := elapsed(l.now().Sub(l.start))
	for _, line := range lines[:len(lines)-1] {
		l.appendLine(stamp, line)
	}
}

// Note appends a message of our own, regardless of keep.
func (l *logBuffer) Note(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLine(elapsed(l.now().Sub(l.start)), msg)
}

func (l *logBuffer) appendLine(stamp, line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	l.b.WriteString(stamp)
	l.b.WriteString("   ")
	l.b.WriteString(line)
	l.b.WriteByte('\n')
	if l.b.Len() > maxLogBytes {
		s := l.b.String()
		s = s[len(s)-maxLogBytes:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		l.b.Reset()
		l.b.WriteString(s)
	}
}

// Snapshot returns the log text, or nil when nothing was recorded.
func (l *logBuffer) Snapshot() *string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Final flushes a trailing partial line and returns the log text.
func (l *logBuffer) Final() *string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.partial != "" {
		l.appendLine(elapsed(l.now().Sub(l.start)), l.partial)
		l.partial = ""
	}
	return l.snapshotLocked()
}

func (l *logBuffer) snapshotLocked() *string {
	if l.b.Len() == 0 {
		return nil
	}
	s := l.b.String()
	return &s
}

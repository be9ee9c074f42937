package mock

import (
	"fmt"
	"strings"
	"sync"
)

// Logger records every formatted line. Debug lines are prefixed with
// "debug: ". It is safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	lines []string
}

// Printf implements hdk.Logger.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.add(fmt.Sprintf(format, v...))
}

// Debugf implements hdk.Logger.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.add("debug: " + fmt.Sprintf(format, v...))
}

func (l *Logger) add(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

// Lines returns a copy of the recorded lines.
func (l *Logger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether any recorded line contains every one of subs.
func (l *Logger) Contains(subs ...string) bool {
outer:
	for _, line := range l.Lines() {
		for _, s := range subs {
			if !strings.Contains(line, s) {
				continue outer
			}
		}
		return true
	}
	return false
}

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// TestLogger は zerolog の JSON 出力をメモリに溜めるテスト用ロガーです。
// 探索ワーカーは複数の goroutine からログを書くので、バッファはロックで守る。
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	search := model_selection.NewGridSearchCV(pipe, grids, model_selection.WithLogger(logger))
//	...
//	logger.ContainsField(log.CandidatesKey, 6.0)
type TestLogger struct {
	*ZerologLogger
	sink *lockedBuffer
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewTestLogger returns a logger at the given minimum level and the buffer
// it writes JSON lines to.
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	sink := &lockedBuffer{buf: &bytes.Buffer{}}
	return &TestLogger{ZerologLogger: NewZerologLogger(sink, level), sink: sink}, sink.buf
}

// With implements Logger.With; the child shares the parent's buffer.
func (t *TestLogger) With(fields ...any) Logger {
	child := t.ZerologLogger.With(fields...).(*ZerologLogger)
	return &TestLogger{ZerologLogger: child, sink: t.sink}
}

// GetLogEntries decodes every captured line.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(t.sink.String(), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether the captured output contains text.
func (t *TestLogger) ContainsMessage(text string) bool {
	return strings.Contains(t.sink.String(), text)
}

// ContainsField reports whether some entry has key set to value. Numbers
// compare as float64 after the JSON round trip.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// CountMessage returns how many entries have exactly the given message.
func (t *TestLogger) CountMessage(message string) int {
	entries, err := t.GetLogEntries()
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if entry["message"] == message {
			n++
		}
	}
	return n
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.buf.Reset()
}

package broker

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FallbackLog is the last-resort durable record for events that exhausted
// their publish retries. One JSON object per line, append-only.
type FallbackLog struct {
	mu   sync.Mutex
	path string
	log  *zap.SugaredLogger
}

// Entry is one undelivered event as stored on disk.
type Entry struct {
	Time float64        `json:"time"`
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

func NewFallbackLog(path string, log *zap.SugaredLogger) *FallbackLog {
	return &FallbackLog{path: path, log: log}
}

// Path returns the backing file location.
func (f *FallbackLog) Path() string { return f.path }

// Append writes one event as a single line. Errors are swallowed: the caller
// is already reporting a publish failure and this write must never mask it.
func (f *FallbackLog) Append(routingKey string, payload map[string]any) {
	line, err := json.Marshal(Entry{
		Time: float64(time.Now().UnixNano()) / 1e9,
		Key:  routingKey,
		Data: payload,
	})
	if err != nil {
		f.log.Warnw("fallback log marshal failed", "routing_key", routingKey, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		f.log.Warnw("fallback log open failed", "path", f.path, "error", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		f.log.Warnw("fallback log write failed", "path", f.path, "error", err)
	}
}

// ReadEntries parses every line of a fallback log file. Unparseable lines are
// skipped so one corrupt line cannot block redelivery of the rest.
func ReadEntries(path string, log *zap.SugaredLogger) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.Warnw("skipping malformed fallback line", "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

package mailbox

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Tracker remembers which (account, uid) pairs were already handed to the
// pipeline. With a file path, entries persist across restarts as one
// "account uid" line each.
type Tracker struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	file string
}

// NewTracker loads (or creates) a tracker. An empty path keeps state in memory.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{ids: make(map[string]struct{}), file: path}
	if path == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			t.ids[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return t, nil
}

func trackerKey(account, uid string) string {
	return account + " " + uid
}

// Seen reports whether the pair was marked.
func (t *Tracker) Seen(account, uid string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[trackerKey(account, uid)]
	return ok
}

// MarkSeen records the pair and appends it to the state file.
func (t *Tracker) MarkSeen(account, uid string) error {
	key := trackerKey(account, uid)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.ids[key]; exists {
		return nil
	}
	t.ids[key] = struct{}{}

	if t.file == "" {
		return nil
	}
	f, err := os.OpenFile(t.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open state file for append: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Count returns the number of tracked pairs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
)

// Follow calls handle for every event already in the trace at path and then
// for each event appended afterwards, until ctx is done or handle returns an
// error. The file need not exist yet. A context cancellation returns nil.
func Follow(ctx context.Context, path string, handle func(Event) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation and truncation are both seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	f := &follower{path: path, handle: handle}
	if err := f.drain(); err != nil {
		return err
	}

	log := logging.FromContext(ctx)
	// A watcher stuck on a bad directory reports the same error repeatedly.
	warn := rate.Sometimes{First: 1, Interval: 10 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := f.drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			warn.Do(func() {
				log.Warn(ctx, "trace watcher error", zap.String("path", path), zap.Error(err))
			})
		}
	}
}

type follower struct {
	path    string
	handle  func(Event) error
	offset  int64
	partial []byte
	line    int
}

// drain reads from the last offset and dispatches complete lines. A trailing
// line without a newline is held until the rest arrives.
func (f *follower) drain() error {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat trace: %w", err)
	}
	if info.Size() < f.offset {
		f.offset, f.partial, f.line = 0, nil, 0
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek trace: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	f.offset += int64(len(data))

	buf := append(f.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:i])
		buf = buf[i+1:]
		if len(line) == 0 {
			continue
		}
		f.line++
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return errcode.New(errcode.BadTrace, "invalid trace JSONL at line %d: %v", f.line, err)
		}
		if err := f.handle(e); err != nil {
			return err
		}
	}
	f.partial = append([]byte(nil), buf...)
	return nil
}

package resource

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce is how long a file must stay quiet before it is reloaded; editors often
// write twice.
const debounce = 100 * time.Millisecond

// Watch reloads map files as they change on disk and hands each successfully
// decoded file to fn. It blocks until ctx is cancelled. Files that fail to decode
// are logged and skipped so a half-saved file never takes a live map down.
// fn is called from the Watch goroutine with the file's last written version.
func (l *Loader) Watch(ctx context.Context, fn func(*MapFile)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(l.dir); err != nil {
		return err
	}
	l.logger.Info("watching map directory", zap.String("dir", l.dir))

	pending := make(map[string]*time.Timer)
	quiet := make(chan string, 16)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isMapFile(event.Name) {
				continue
			}
			name := event.Name
			if t, seen := pending[name]; seen {
				t.Reset(debounce)
				continue
			}
			pending[name] = time.AfterFunc(debounce, func() {
				select {
				case quiet <- name:
				case <-ctx.Done():
				}
			})
		case name := <-quiet:
			delete(pending, name)
			mf, err := LoadMapFile(name)
			if err != nil {
				l.logger.Warn("map reload failed", zap.String("path", name), zap.Error(err))
				continue
			}
			l.logger.Info("map file changed", zap.String("map", mf.Name), zap.String("path", name))
			fn(mf)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("map watcher error", zap.Error(err))
		}
	}
}

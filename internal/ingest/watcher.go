package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// settleDelay is how long a file must stay quiet before it is ingested, so
// that files still being copied are not parsed half-written.
const settleDelay = 500 * time.Millisecond

// Watch ingests files created or rewritten under root/<category>/ until ctx
// ends. Only category directories that exist when Watch starts are watched.
// handle, if not nil, receives every result.
func (c *Coordinator) Watch(ctx context.Context, root string, handle func(document.Result)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dirs := make(map[string]category.Category)
	for _, cat := range category.All() {
		dir := filepath.Join(root, cat.String())
		if err := watcher.Add(dir); err != nil {
			c.logger.Warn("not watching category directory", "dir", dir, "error", err)
			continue
		}
		dirs[dir] = cat
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no category directories to watch under %s", root)
	}
	c.logger.Info("watching corpus", "root", root, "directories", len(dirs))

	var (
		g        errgroup.Group
		mu       sync.Mutex
		closed   bool
		inflight sync.WaitGroup
		pending  = make(map[string]*time.Timer)
	)
	g.SetLimit(c.workers)
	dispatch := func(src document.Source) {
		mu.Lock()
		if closed {
			mu.Unlock()
			return
		}
		delete(pending, src.Path)
		inflight.Add(1)
		mu.Unlock()
		defer inflight.Done()
		g.Go(func() error {
			res := c.IngestFile(ctx, src)
			if handle != nil {
				handle(res)
			}
			return nil
		})
	}

	defer func() {
		mu.Lock()
		closed = true
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
		inflight.Wait()
		g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watcher error", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			cat, ok := dirs[filepath.Dir(ev.Name)]
			name := filepath.Base(ev.Name)
			if !ok || !c.accepts(name) {
				continue
			}
			src := document.Source{Category: cat, Filename: name, Path: ev.Name}
			mu.Lock()
			if t, ok := pending[ev.Name]; ok {
				t.Reset(settleDelay)
			} else {
				pending[ev.Name] = time.AfterFunc(settleDelay, func() { dispatch(src) })
			}
			mu.Unlock()
		}
	}
}

package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/ewbik/engine/assets/loaders"
	"github.com/spaghettifunk/ewbik/engine/core"
)

type RigInfo struct {
	Path        string
	Fingerprint uint64
	LastLoaded  time.Time
}

// RigEvent reports a rig file that changed on disk. Either Rig or Err is set.
type RigEvent struct {
	Path string
	Rig  *loaders.Rig
	Err  error
}

// RigWatcher reloads rig files when they change on disk. Directories are
// watched rather than files so that editors replacing a file on save are
// still seen.
type RigWatcher struct {
	rigs   map[string]RigInfo
	loader Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	events   chan RigEvent
}

func NewRigWatcher(loader Loader) (*RigWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if loader == nil {
		loader = &loaders.RigLoader{}
	}

	rw := &RigWatcher{
		rigs:     make(map[string]RigInfo),
		loader:   loader,
		fsnotify: fsWatch,
		events:   make(chan RigEvent, 16),
		done:     make(chan struct{}),
	}
	go rw.start()
	return rw, nil
}

// Events delivers reloaded rigs. The channel is closed by Close.
func (rw *RigWatcher) Events() <-chan RigEvent {
	return rw.events
}

// Watch starts watching a rig file, or every rig file under a directory.
// The fingerprint is the hash of the version already loaded, if any, so an
// unchanged save does not trigger a reload.
func (rw *RigWatcher) Watch(path string, fingerprint uint64) error {
	rw.mutex.Lock()
	closed := rw.isClosed
	rw.mutex.Unlock()
	if closed {
		return core.ErrWatcherClosed
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return rw.watchRecursive(abs)
	}
	if _, err := loaders.FormatFromPath(abs); err != nil {
		return err
	}
	if err := rw.fsnotify.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	rw.track(abs, fingerprint)
	return nil
}

// Unwatch stops reporting changes of a rig file.
func (rw *RigWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	delete(rw.rigs, abs)
	return nil
}

// Watched lists the rig files being watched.
func (rw *RigWatcher) Watched() []RigInfo {
	rw.mutex.RLock()
	defer rw.mutex.RUnlock()

	list := make([]RigInfo, 0, len(rw.rigs))
	for _, info := range rw.rigs {
		list = append(list, info)
	}
	return list
}

func (rw *RigWatcher) Close() error {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if rw.isClosed {
		return nil
	}
	rw.isClosed = true
	close(rw.done)
	return nil
}

func (rw *RigWatcher) start() {
	for {
		select {
		case e, ok := <-rw.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := rw.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				rw.handleFileEvent(e.Name)
			}

		case err, ok := <-rw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-rw.done:
			rw.fsnotify.Close()
			close(rw.events)
			return
		}
	}
}

// watchRecursive adds every directory under root to the watch list and
// tracks the rig files found there.
func (rw *RigWatcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return rw.fsnotify.Add(walkPath)
		}
		if _, err := loaders.FormatFromPath(walkPath); err == nil {
			rw.track(walkPath, 0)
		}
		return nil
	})
}

func (rw *RigWatcher) track(path string, fingerprint uint64) {
	rw.mutex.Lock()
	defer rw.mutex.Unlock()

	if _, ok := rw.rigs[path]; ok && fingerprint == 0 {
		return
	}
	rw.rigs[path] = RigInfo{Path: path, Fingerprint: fingerprint}
}

// handleFileEvent reloads a tracked rig and publishes it unless its contents
// did not change.
func (rw *RigWatcher) handleFileEvent(path string) {
	rw.mutex.RLock()
	info, tracked := rw.rigs[path]
	rw.mutex.RUnlock()
	if !tracked {
		return
	}

	rig, err := rw.loader.Load(context.Background(), path)
	if err != nil {
		core.LogWarn("failed to reload rig %s: %s", path, err.Error())
		rw.publish(RigEvent{Path: path, Err: fmt.Errorf("reload %s: %w", path, err)})
		return
	}
	if rig.Fingerprint == info.Fingerprint {
		return
	}

	rw.mutex.Lock()
	rw.rigs[path] = RigInfo{Path: path, Fingerprint: rig.Fingerprint, LastLoaded: time.Now()}
	rw.mutex.Unlock()

	core.LogInfo("rig %s changed, reloaded", path)
	rw.publish(RigEvent{Path: path, Rig: rig})
}

func (rw *RigWatcher) publish(e RigEvent) {
	select {
	case rw.events <- e:
	case <-rw.done:
	}
}

package whisper

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/sync/semaphore"
	"os"
	"path/filepath"
	"sync"
)

var ErrModelNotFound = errors.New("whisper model not found")

// Model is a resolved transcription model and its concurrency slots. The
// registry keeps it for the life of the process, but each transcription still
// runs a fresh whisper process that loads the weights itself.
type Model struct {
	Name string
	Path string

	slots *semaphore.Weighted
	refs  int
}

// Loader resolves a model name to something the transcriber can run.
type Loader func(name string) (*Model, error)

// DirLoader looks for <dir>/<name>.pt. An empty dir lets the whisper binary
// resolve (and download) the model itself.
func DirLoader(dir string) Loader {
	return func(name string) (*Model, error) {
		if dir == "" {
			return &Model{Name: name}, nil
		}
		path := filepath.Join(dir, name+".pt")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModelNotFound, name, err)
		}
		return &Model{Name: name, Path: path}, nil
	}
}

// Registry hands out shared models keyed by name. Each model admits at most
// slots concurrent transcriptions.
type Registry struct {
	mu     sync.Mutex
	models map[string]*Model
	load   Loader
	slots  int64
}

func NewRegistry(load Loader, slots int) *Registry {
	if slots < 1 {
		slots = 1
	}
	return &Registry{
		models: make(map[string]*Model),
		load:   load,
		slots:  int64(slots),
	}
}

// Acquire loads the model on first use and blocks until a slot is free. The
// returned release must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, name string) (*Model, func(), error) {
	r.mu.Lock()
	model, ok := r.models[name]
	if !ok {
		loaded, err := r.load(name)
		if err != nil {
			r.mu.Unlock()
			return nil, nil, err
		}
		loaded.slots = semaphore.NewWeighted(r.slots)
		r.models[name] = loaded
		model = loaded
	}
	model.refs++
	r.mu.Unlock()

	if err := model.slots.Acquire(ctx, 1); err != nil {
		r.mu.Lock()
		model.refs--
		r.mu.Unlock()
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			model.slots.Release(1)
			r.mu.Lock()
			model.refs--
			r.mu.Unlock()
		})
	}
	return model, release, nil
}

// InUse reports how many callers currently hold the named model.
func (r *Registry) InUse(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[name]; ok {
		return m.refs
	}
	return 0
}

func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

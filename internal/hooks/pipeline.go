// Package hooks implements the named-stage extension pipeline. Plugins
// register handlers per (protocol, stage); the engine threads request and
// response payloads through them in priority order.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wirecat/wirecat/internal/descriptor"
)

// Stage names a pipeline extension point.
type Stage string

const (
	StageBuildRequest    Stage = "build-request"
	StageProcessResponse Stage = "process-response"
)

// DefaultPriority is the priority group used when a plugin does not care
// about ordering. Handlers within one priority group run in registration
// order.
const DefaultPriority = 0

// Handler observes or transforms a stage payload. Returning an error aborts
// the stage; the error propagates to the stage's caller rather than being
// swallowed, since a plugin silently corrupting a request is worse than a
// visible failure.
type Handler func(ctx context.Context, payload any) (any, error)

// Unregister removes a single hook registration. Safe to call more than
// once.
type Unregister func()

type bucketKey struct {
	protocol descriptor.Protocol
	stage    Stage
}

type registration struct {
	id       int
	priority int
	handler  Handler
}

// Registry stores hook registrations per (protocol, stage) bucket. It is
// constructed by the host composition root and passed to the engine; there
// is no process-wide singleton.
type Registry struct {
	mu      sync.RWMutex
	buckets map[bucketKey][]registration
	nextID  int
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[bucketKey][]registration)}
}

// Register adds a handler for the given protocol and stage. Handlers run in
// ascending priority; ties break by registration order.
func (r *Registry) Register(protocol descriptor.Protocol, stage Stage, handler Handler, priority int) Unregister {
	key := bucketKey{protocol: protocol, stage: stage}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.buckets[key] = append(r.buckets[key], registration{id: id, priority: priority, handler: handler})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, id) })
	}
}

func (r *Registry) remove(key bucketKey, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.buckets[key]
	for i, reg := range regs {
		if reg.id == id {
			r.buckets[key] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// RunStage threads the payload sequentially through every handler registered
// for the bucket. A handler error aborts the stage and is returned wrapped
// with the stage name.
func (r *Registry) RunStage(ctx context.Context, protocol descriptor.Protocol, stage Stage, payload any) (any, error) {
	r.mu.RLock()
	regs := r.buckets[bucketKey{protocol: protocol, stage: stage}]
	ordered := make([]registration, len(regs))
	copy(ordered, regs)
	r.mu.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].priority < ordered[j].priority
	})

	var err error
	for _, reg := range ordered {
		payload, err = reg.handler(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("hook stage %s aborted: %w", stage, err)
		}
	}
	return payload, nil
}

// Plugin groups registrations so that everything a plugin registered can be
// removed at once when it unloads.
type Plugin struct {
	name     string
	registry *Registry

	mu      sync.Mutex
	unregs  []Unregister
	removed bool
}

// Plugin returns a registration scope for a named plugin.
func (r *Registry) Plugin(name string) *Plugin {
	return &Plugin{name: name, registry: r}
}

// Name returns the plugin name the scope was created with.
func (p *Plugin) Name() string { return p.name }

// Register adds a handler owned by this plugin.
func (p *Plugin) Register(protocol descriptor.Protocol, stage Stage, handler Handler, priority int) Unregister {
	unreg := p.registry.Register(protocol, stage, handler, priority)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		// Plugin already unloaded; undo immediately.
		unreg()
		return unreg
	}
	p.unregs = append(p.unregs, unreg)
	return unreg
}

// Unload removes all of the plugin's registrations.
func (p *Plugin) Unload() {
	p.mu.Lock()
	unregs := p.unregs
	p.unregs = nil
	p.removed = true
	p.mu.Unlock()

	for _, unreg := range unregs {
		unreg()
	}
}

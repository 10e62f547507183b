// Package metrics is a tiny in-process counters/gauges registry mirroring
// the source's R_SPEEDS_COUNTER calls in vk_staging.c/vk_ray_accel.c. No
// external metrics client is wired: nothing in the pack ships one usable
// headless, so this stays a plain mutex-guarded map (see DESIGN.md).
package metrics

import "sync"

// Counter is a monotonically-increasing named stat (e.g. accels_built).
type Counter struct {
	mu    sync.Mutex
	name  string
	value uint64
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Add(delta uint64) {
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}
func (c *Counter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Gauge is a named stat that can go up or down (e.g. buffers_size).
type Gauge struct {
	mu    sync.Mutex
	name  string
	value int64
}

func (g *Gauge) Name() string { return g.name }
func (g *Gauge) Set(v int64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}
func (g *Gauge) Value() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Registry holds the fixed set of per-frame RT stats named in the source:
// total_size, buffers_size, images_size, buffer_chunks, images,
// accels_built, instances_count.
type Registry struct {
	TotalSize     Gauge
	BuffersSize   Gauge
	ImagesSize    Gauge
	BufferChunks  Gauge
	Images        Gauge
	AccelsBuilt   Counter
	InstanceCount Gauge
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.TotalSize.name = "total_size"
	r.BuffersSize.name = "buffers_size"
	r.ImagesSize.name = "images_size"
	r.BufferChunks.name = "buffer_chunks"
	r.Images.name = "images"
	r.AccelsBuilt.name = "accels_built"
	r.InstanceCount.name = "instances_count"
	return r
}

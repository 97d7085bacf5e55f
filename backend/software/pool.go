package software

import (
	"sync"

	"github.com/gogpu/raytrace/rtcore"
)

// commandPool recycles command buffers for one queue family. Each family
// has its own pool and lock, so recording on different families never
// contends.
type commandPool struct {
	kind rtcore.QueueKind

	mu   sync.Mutex
	free []*CommandBuffer
}

// acquire returns a reset command buffer, allocating one if none is free.
func (p *commandPool) acquire(d *Device) *CommandBuffer {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		cb := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return cb
	}
	p.mu.Unlock()

	d.cmdAllocated.Add(1)
	return &CommandBuffer{dev: d, kind: p.kind}
}

// release returns a submitted command buffer to the pool.
func (p *commandPool) release(cb *CommandBuffer) {
	cb.reset()
	p.mu.Lock()
	p.free = append(p.free, cb)
	p.mu.Unlock()
}

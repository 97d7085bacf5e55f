package software

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raytrace/rtcore"
)

// fenceSignaler is implemented by HAL fences the host can signal, such as
// the noop backend's fence.
type fenceSignaler interface {
	Signal(value uint64)
}

// Queue executes submitted command buffers and blocks on a fence until
// the HAL reports completion.
type Queue struct {
	kind  rtcore.QueueKind
	dev   *Device
	fence hal.Fence

	// mu serializes submission; it is held for the whole submit-and-wait.
	mu sync.Mutex
}

var _ rtcore.Queue = (*Queue)(nil)

// Kind returns the queue family.
func (q *Queue) Kind() rtcore.QueueKind { return q.kind }

// SubmitBlocking executes the command buffers in order, submits a matching
// HAL submission and waits on the queue fence. Command buffers return to
// their pool afterwards, whether or not the submission succeeded.
func (q *Queue) SubmitBlocking(cbs ...rtcore.CommandBuffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	d := q.dev
	if d.closed.Load() {
		return ErrClosed
	}

	own := make([]*CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		c, ok := cb.(*CommandBuffer)
		if !ok || c == nil || c.dev != d {
			return fmt.Errorf("%w: command buffer %T does not belong to this device", rtcore.ErrValidation, cb)
		}
		if slices.Contains(own, c) {
			return fmt.Errorf("%w: command buffer submitted twice in one call", rtcore.ErrInvalidState)
		}
		if c.kind != q.kind {
			return fmt.Errorf("%w: %v command buffer submitted to %v queue", rtcore.ErrValidation, c.kind, q.kind)
		}
		own = append(own, c)
	}
	defer func() {
		for _, c := range own {
			d.pools[c.kind].release(c)
		}
	}()

	if err := d.faults.check(FaultSubmit); err != nil {
		return err
	}

	halCmds := make([]hal.CommandBuffer, 0, len(own))
	defer func() {
		for _, hc := range halCmds {
			d.hal.FreeCommandBuffer(hc)
		}
	}()
	for _, c := range own {
		cmds, err := c.take()
		if err != nil {
			return err
		}
		hc, err := q.encode(cmds)
		if err != nil {
			return err
		}
		halCmds = append(halCmds, hc)
		for i, cmd := range cmds {
			if err := d.execute(cmd); err != nil {
				return fmt.Errorf("%w: %v queue command %d: %w", rtcore.ErrDevice, q.kind, i, err)
			}
		}
	}

	d.halMu.Lock()
	idx, err := d.halQueue.Submit(halCmds)
	d.halMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v queue submit: %w", rtcore.ErrDevice, q.kind, err)
	}
	d.submissions.Add(1)
	return q.wait(idx)
}

// encode mirrors the recorded copies into a HAL command buffer, so the HAL
// sees the same submission the host executes.
func (q *Queue) encode(cmds []command) (hal.CommandBuffer, error) {
	d := q.dev
	label := q.kind.String() + " submission"
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %w", rtcore.ErrDevice, err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("%w: begin encoding: %w", rtcore.ErrDevice, err)
	}
	for _, cmd := range cmds {
		if cmd.copy == nil {
			continue
		}
		src, err := d.ownBuffer(cmd.copy.src)
		if err != nil {
			enc.DiscardEncoding()
			return nil, err
		}
		dst, err := d.ownBuffer(cmd.copy.dst)
		if err != nil {
			enc.DiscardEncoding()
			return nil, err
		}
		enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{
			SrcOffset: cmd.copy.srcOffset,
			DstOffset: cmd.copy.dstOffset,
			Size:      cmd.copy.size,
		}})
	}
	hc, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("%w: end encoding: %w", rtcore.ErrDevice, err)
	}
	return hc, nil
}

// wait blocks until submission idx has completed or the fence timeout
// elapses.
func (q *Queue) wait(idx uint64) error {
	d := q.dev
	timeout := d.cfg.FenceTimeout

	if s, ok := q.fence.(fenceSignaler); ok {
		// The noop HAL completes work at submit; signal on its behalf.
		s.Signal(idx)
		done, err := d.hal.Wait(q.fence, idx, timeout)
		if err != nil {
			return fmt.Errorf("%w: %v fence wait: %w", rtcore.ErrDevice, q.kind, err)
		}
		if !done {
			return fmt.Errorf("%w: %v fence wait: %w", rtcore.ErrDevice, q.kind, hal.ErrTimeout)
		}
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		d.halMu.Lock()
		completed := d.halQueue.PollCompleted()
		d.halMu.Unlock()
		if completed >= idx {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v submission %d: %w", rtcore.ErrDevice, q.kind, idx, hal.ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

package software

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace/rtcore"
)

// buildCommand is a recorded vkCmdBuildAccelerationStructuresKHR.
type buildCommand struct {
	info   rtcore.BuildGeometryInfo
	ranges []vk.AccelerationStructureBuildRangeInfoKHR
}

// copyCommand is a recorded vkCmdCopyBuffer.
type copyCommand struct {
	src, dst             rtcore.Buffer
	srcOffset, dstOffset uint64
	size                 uint64
}

// command is one recorded operation. Exactly one field is set.
type command struct {
	build *buildCommand
	copy  *copyCommand
}

// CommandBuffer records commands for host execution at submit time.
//
// A command buffer is single-use: after submission it returns to its
// pool and must not be recorded into again.
type CommandBuffer struct {
	dev  *Device
	kind rtcore.QueueKind

	mu        sync.Mutex
	commands  []command
	submitted bool
}

var _ rtcore.CommandBuffer = (*CommandBuffer)(nil)

// Queue returns the queue family of the pool the buffer came from.
func (c *CommandBuffer) Queue() rtcore.QueueKind { return c.kind }

// BuildAccelerationStructures records one build per info. The infos and
// ranges are copied, so callers may reuse them after the call.
func (c *CommandBuffer) BuildAccelerationStructures(infos []rtcore.BuildGeometryInfo, ranges [][]vk.AccelerationStructureBuildRangeInfoKHR) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range infos {
		info := infos[i]
		info.Geometries = slices.Clone(info.Geometries)
		var r []vk.AccelerationStructureBuildRangeInfoKHR
		if i < len(ranges) {
			r = slices.Clone(ranges[i])
		}
		c.commands = append(c.commands, command{build: &buildCommand{info: info, ranges: r}})
	}
}

// CopyBuffer records a buffer to buffer copy.
func (c *CommandBuffer) CopyBuffer(src, dst rtcore.Buffer, srcOffset, dstOffset, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, command{copy: &copyCommand{
		src: src, dst: dst, srcOffset: srcOffset, dstOffset: dstOffset, size: size,
	}})
}

// take returns the recorded commands and marks the buffer submitted.
func (c *CommandBuffer) take() ([]command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitted {
		return nil, fmt.Errorf("%w: command buffer already submitted", rtcore.ErrInvalidState)
	}
	c.submitted = true
	cmds := c.commands
	c.commands = nil
	return cmds, nil
}

// reset prepares a pooled buffer for reuse.
func (c *CommandBuffer) reset() {
	c.mu.Lock()
	c.commands = nil
	c.submitted = false
	c.mu.Unlock()
}

// execute runs one recorded command on the host.
func (d *Device) execute(cmd command) error {
	switch {
	case cmd.build != nil:
		return d.executeBuild(&cmd.build.info, cmd.build.ranges)
	case cmd.copy != nil:
		return d.executeCopy(cmd.copy)
	default:
		return fmt.Errorf("%w: empty command", rtcore.ErrDevice)
	}
}

func (d *Device) executeCopy(c *copyCommand) error {
	src, err := d.ownBuffer(c.src)
	if err != nil {
		return err
	}
	dst, err := d.ownBuffer(c.dst)
	if err != nil {
		return err
	}
	data, err := src.load(c.srcOffset, c.size)
	if err != nil {
		return err
	}
	return dst.store(c.dstOffset, data)
}

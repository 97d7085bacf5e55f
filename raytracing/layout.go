package raytracing

import "github.com/gogpu/raytrace/rtcore"

// Region is a range of slots inside a shader binding table buffer.
type Region struct {
	Offset uint64
	Stride uint64
	Size   uint64
}

func (r Region) end() uint64 { return r.Offset + r.Size }

// Slots returns the number of slots in the region.
func (r Region) Slots() uint64 {
	if r.Stride == 0 {
		return 0
	}
	return r.Size / r.Stride
}

// Layout is the placement of the four regions of a shader binding table.
type Layout struct {
	HandleSize uint64
	Stride     uint64
	Raygen     Region
	Miss       Region
	Hit        Region
	Callable   Region

	// Size is the buffer size in bytes.
	Size uint64
}

// NewLayout places one raygen slot, missCount miss slots and hitSlots hit
// slots, each region starting on a base alignment boundary. The callable
// region is always empty.
func NewLayout(props rtcore.Properties, missCount, hitSlots int) (Layout, error) {
	stride, err := props.GroupStride()
	if err != nil {
		return Layout{}, err
	}
	align := uint64(props.ShaderGroupBaseAlignment)

	l := Layout{HandleSize: uint64(props.ShaderGroupHandleSize), Stride: stride}
	l.Raygen = Region{Offset: 0, Stride: stride, Size: stride}
	l.Miss = Region{Offset: rtcore.AlignUp(l.Raygen.end(), align), Stride: stride, Size: uint64(missCount) * stride}
	l.Hit = Region{Offset: rtcore.AlignUp(l.Miss.end(), align), Stride: stride, Size: uint64(hitSlots) * stride}
	l.Callable = Region{Offset: rtcore.AlignUp(l.Hit.end(), align)}
	l.Size = l.Hit.end()
	return l, nil
}

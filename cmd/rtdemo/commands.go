package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/wgpu/hal/vulkan/vk"

	"github.com/gogpu/raytrace"
	"github.com/gogpu/raytrace/accel"
	"github.com/gogpu/raytrace/backend/software"
	"github.com/gogpu/raytrace/raytracing"
	"github.com/gogpu/raytrace/rtcore"
)

var triangleVertices = []f32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

func contextOptions(ctx *cli.Context) []raytrace.ContextOption {
	return []raytrace.ContextOption{
		raytrace.WithName("rtdemo"),
		raytrace.WithDebugIdle(ctx.GlobalBool("debug-idle")),
	}
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)
	return table
}

func structureRow(s *accel.AccelerationStructure) []string {
	return []string{s.Name(), s.Kind().String(), strconv.FormatUint(s.Size(), 10), fmt.Sprintf("%#x", uint64(s.DeviceAddress()))}
}

func runTriangle(ctx *cli.Context) error {
	rc, err := raytrace.Open(contextOptions(ctx)...)
	if err != nil {
		return err
	}
	defer rc.Close()

	mesh, err := rc.UploadMesh("triangle", triangleVertices, []uint32{0, 1, 2})
	if err != nil {
		return err
	}
	defer mesh.Release()

	blas, err := rc.BuildBottomLevel("triangle", mesh.Triangles)
	if err != nil {
		return err
	}
	defer blas.Release()

	inst := accel.NewInstance(blas, rtcore.Identity)
	defer inst.Release()
	tlas, err := rc.BuildTopLevel("scene", inst)
	if err != nil {
		return err
	}
	defer tlas.Release()

	table := newTable("Structure", "Kind", "Size", "Address", "Bounds")
	for _, s := range []*accel.AccelerationStructure{blas, tlas} {
		row := append(structureRow(s), describe(rc.Device(), s))
		table.Append(row)
	}
	table.Render()
	return nil
}

// describe returns the bounds the software device recorded for s.
func describe(dev rtcore.Device, s *accel.AccelerationStructure) string {
	sw, ok := dev.(*software.Device)
	if !ok {
		return "-"
	}
	sum, err := sw.Describe(s.Handle())
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%v .. %v", sum.Min, sum.Max)
}

func parseOrder(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var order []uint32
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad --order entry %q: %w", f, err)
		}
		order = append(order, uint32(v))
	}
	return order, nil
}

func runSBT(ctx *cli.Context) error {
	missCount, hitCount := ctx.Int("miss"), ctx.Int("hit")
	if missCount < 0 || hitCount < 0 {
		return fmt.Errorf("--miss and --hit must not be negative")
	}
	order, err := parseOrder(ctx.String("order"))
	if err != nil {
		return err
	}

	dev, err := software.New(software.Config{
		HandleSize:     uint32(ctx.Int("handle-size")),
		BaseAlignment:  uint32(ctx.Int("base-alignment")),
		MaxGroupStride: uint32(ctx.Int("max-stride")),
	})
	if err != nil {
		return err
	}
	defer dev.Close()
	rc := raytrace.NewContext(dev, contextOptions(ctx)...)

	eps := []rtcore.EntryPoint{
		{Name: "rgen", Model: rtcore.ExecutionModelRayGeneration},
		{Name: "rchit", Model: rtcore.ExecutionModelClosestHit},
	}
	for i := range missCount {
		eps = append(eps, rtcore.EntryPoint{Name: fmt.Sprintf("miss%d", i), Model: rtcore.ExecutionModelMiss})
	}
	mod, err := rc.NewShaderModule("stub", rtcore.AssembleEntryPoints(eps...))
	if err != nil {
		return err
	}
	defer mod.Destroy()

	desc := raytracing.PipelineDescriptor{
		Name:              "stub",
		Raygen:            raytracing.NewShaderStage(mod, raytracing.StageRaygen, "rgen"),
		MaxRecursionDepth: 1,
	}
	for i := range missCount {
		desc.Miss = append(desc.Miss, raytracing.NewShaderStage(mod, raytracing.StageMiss, fmt.Sprintf("miss%d", i)))
	}
	hit := raytracing.NewShaderStage(mod, raytracing.StageClosestHit, "rchit")
	for range hitCount {
		desc.HitGroups = append(desc.HitGroups, raytracing.NewTrianglesHitGroup(hit, nil))
	}

	p, err := rc.NewPipeline(desc)
	if err != nil {
		return err
	}
	defer p.Release()

	sbt, err := rc.NewShaderBindingTable(p, order...)
	if err != nil {
		return err
	}
	defer sbt.Release()

	l := sbt.Layout()
	regions := newTable("Region", "Offset", "Address", "Stride", "Size", "Slots")
	for _, r := range []struct {
		name   string
		layout raytracing.Region
		region vk.StridedDeviceAddressRegionKHR
	}{
		{"raygen", l.Raygen, sbt.RaygenRegion()},
		{"miss", l.Miss, sbt.MissRegion()},
		{"hit", l.Hit, sbt.HitRegion()},
		{"callable", l.Callable, sbt.CallableRegion()},
	} {
		regions.Append([]string{
			r.name,
			strconv.FormatUint(r.layout.Offset, 10),
			fmt.Sprintf("%#x", uint64(r.region.DeviceAddress)),
			strconv.FormatUint(uint64(r.region.Stride), 10),
			strconv.FormatUint(uint64(r.region.Size), 10),
			strconv.FormatUint(r.layout.Slots(), 10),
		})
	}
	regions.Render()

	handles := p.Handles()
	hs := uint64(p.HandleSize())
	slots := newTable("Hit Slot", "Hit Group", "Blob Group", "Handle")
	for i, h := range sbt.HitOrder() {
		g := 2 + uint64(h)
		slots.Append([]string{
			strconv.Itoa(i),
			strconv.FormatUint(uint64(h), 10),
			strconv.FormatUint(g, 10),
			hex.EncodeToString(handles[g*hs : g*hs+min(hs, 8)]),
		})
	}
	slots.Render()

	slog.Info("shader binding table packed",
		"groups", p.Table().Len(), "stride", sbt.Stride(), "size", sbt.Size())
	return nil
}

func runBatch(ctx *cli.Context) error {
	count := ctx.Int("count")
	if count <= 0 {
		return fmt.Errorf("--count must be positive")
	}

	rc, err := raytrace.Open(contextOptions(ctx)...)
	if err != nil {
		return err
	}
	defer rc.Close()

	meshes := make([][]accel.Geometry, count)
	for i := range count {
		verts := make([]f32.Vec3, len(triangleVertices))
		for j, v := range triangleVertices {
			verts[j] = f32.Vec3{v[0] + float32(i), v[1], v[2]}
		}
		m, err := rc.UploadMesh(fmt.Sprintf("rock %d", i), verts, []uint32{0, 1, 2})
		if err != nil {
			return err
		}
		defer m.Release()
		meshes[i] = []accel.Geometry{m.Triangles}
	}

	start := time.Now()
	built, err := rc.BuildBottomLevelBatch(context.Background(), "rock", ctx.Int("workers"), meshes)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range built {
			s.Release()
		}
	}()
	slog.Info("bottom-level batch built", "count", len(built), "elapsed", time.Since(start))

	instances := make([]*accel.Instance, len(built))
	for i, s := range built {
		instances[i] = accel.NewInstance(s, rtcore.Identity)
		instances[i].SetCustomIndex(uint32(i))
		defer instances[i].Release()
	}
	tlas, err := rc.BuildTopLevel("scene", instances...)
	if err != nil {
		return err
	}
	defer tlas.Release()

	table := newTable("Structure", "Kind", "Size", "Address", "Bounds")
	for _, s := range built {
		table.Append(append(structureRow(s), describe(rc.Device(), s)))
	}
	table.Append(append(structureRow(tlas), describe(rc.Device(), tlas)))
	table.Render()
	return nil
}

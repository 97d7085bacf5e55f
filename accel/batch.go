package accel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/raytrace/rtcore"
)

// BuildBottomLevelBatch builds one bottom-level structure per mesh with at
// most workers builds in flight. Each build keeps the blocking protocol.
// Structures are named "{cfg.Name} {i}".
//
// On the first failure the remaining builds are skipped, every structure
// built so far is released and the error is returned.
func BuildBottomLevelBatch(ctx context.Context, dev rtcore.Device, cfg Config, workers int, meshes [][]Geometry) ([]*AccelerationStructure, error) {
	cfg = cfg.withDefaults()
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]*AccelerationStructure, len(meshes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, mesh := range meshes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := cfg
			c.Name = fmt.Sprintf("%s %d", cfg.Name, i)
			s, err := BuildBottomLevel(dev, c, mesh...)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range out {
			if s != nil {
				s.Release()
			}
		}
		return nil, err
	}
	slogger().Debug("accel: batch built", "count", len(meshes), "workers", workers)
	return out, nil
}

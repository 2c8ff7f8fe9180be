package pointcloud

import (
	"github.com/golang/geo/r3"
)

// NewGrid returns an n*n*n cube of uncolored points spaced step apart starting
// at origin. It is meant for tests and synthetic sources.
func NewGrid(origin r3.Vector, n int, step float64) *PointCloud {
	cloud := NewWithPrealloc(n * n * n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				cloud.Append(origin.Add(r3.Vector{
					X: float64(x) * step,
					Y: float64(y) * step,
					Z: float64(z) * step,
				}), NewBasicData())
			}
		}
	}
	return cloud
}

package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes the attributes carried alongside a single point of a PointCloud.
// The zero value is a point with neither color nor normal.
type Data struct {
	hasColor bool
	c        color.NRGBA

	hasNormal bool
	normal    r3.Vector
}

// NewBasicData returns a point with no attributes.
func NewBasicData() Data {
	return Data{}
}

// NewColoredData returns a point that has the given color.
func NewColoredData(c color.NRGBA) Data {
	return Data{hasColor: true, c: c}
}

// NewNormalData returns a point with an estimated surface normal.
func NewNormalData(n r3.Vector) Data {
	return Data{hasNormal: true, normal: n}
}

// HasColor returns whether or not this point is colored.
func (d Data) HasColor() bool {
	return d.hasColor
}

// Color returns the color of the point. Uncolored points report white.
func (d Data) Color() color.NRGBA {
	if !d.hasColor {
		return color.NRGBA{255, 255, 255, 255}
	}
	return d.c
}

// RGB255 returns the RGB components of the color.
func (d Data) RGB255() (uint8, uint8, uint8) {
	c := d.Color()
	return c.R, c.G, c.B
}

// WithColor returns a copy of the data with the color set.
func (d Data) WithColor(c color.NRGBA) Data {
	d.hasColor = true
	d.c = c
	return d
}

// HasNormal returns whether or not this point carries a normal.
func (d Data) HasNormal() bool {
	return d.hasNormal
}

// Normal returns the normal of the point, or the zero vector.
func (d Data) Normal() r3.Vector {
	return d.normal
}

// WithNormal returns a copy of the data with the normal set.
func (d Data) WithNormal(n r3.Vector) Data {
	d.hasNormal = true
	d.normal = n
	return d
}

package rgbd

import (
	"github.com/pkg/errors"
)

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective
// projection of a depth image into 3D space.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// PrimeSenseDefault are the intrinsics of a 640x480 PrimeSense sensor.
func PrimeSenseDefault() PinholeCameraIntrinsics {
	return PinholeCameraIntrinsics{
		Width:  640,
		Height: 480,
		Fx:     525,
		Fy:     525,
		Ppx:    319.5,
		Ppy:    239.5,
	}
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params.Width <= 0 || params.Height <= 0 {
		return errors.Errorf("invalid size (%#v, %#v)", params.Width, params.Height)
	}
	if params.Fx <= 0 {
		return errors.Errorf("invalid focal length fx = %#v", params.Fx)
	}
	if params.Fy <= 0 {
		return errors.Errorf("invalid focal length fy = %#v", params.Fy)
	}
	if params.Ppx < 0 {
		return errors.Errorf("invalid principal x point ppx = %#v", params.Ppx)
	}
	if params.Ppy < 0 {
		return errors.Errorf("invalid principal y point ppy = %#v", params.Ppy)
	}
	return nil
}

// PixelToPoint transforms a pixel with depth z into camera coordinates.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

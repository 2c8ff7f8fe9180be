package scene

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoPointCloud is returned by operations that need a captured cloud when there is none.
	ErrNoPointCloud = errors.New("no point cloud has been captured")
	// ErrNoMesh is returned when exporting before any reconstruction succeeded.
	ErrNoMesh = errors.New("no mesh has been reconstructed")
)

// AcquisitionError is returned when the camera cannot deliver a cloud.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed: %v", e.Err)
}

// Unwrap returns the source's error.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// ReconstructionError is returned when a reconstruction method fails.
type ReconstructionError struct {
	Method Method
	Err    error
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("%s reconstruction failed: %v", e.Method, e.Err)
}

// Unwrap returns the geometry backend's error.
func (e *ReconstructionError) Unwrap() error {
	return e.Err
}

// FilterError is returned when a filter fails in the geometry backend.
type FilterError struct {
	Op  FilterOp
	Err error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s filter failed: %v", e.Op, e.Err)
}

// Unwrap returns the geometry backend's error.
func (e *FilterError) Unwrap() error {
	return e.Err
}

// ParamsError is returned for unknown operations or invalid parameters.
type ParamsError struct {
	Err error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid request: %v", e.Err)
}

// Unwrap returns the validation error.
func (e *ParamsError) Unwrap() error {
	return e.Err
}

// IsAcquisitionError reports whether err is or wraps an AcquisitionError.
func IsAcquisitionError(err error) bool {
	var target *AcquisitionError
	return errors.As(err, &target)
}

// IsReconstructionError reports whether err is or wraps a ReconstructionError.
func IsReconstructionError(err error) bool {
	var target *ReconstructionError
	return errors.As(err, &target)
}

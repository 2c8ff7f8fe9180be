// Package register registers all camera models.
package register

import (
	// register models.
	_ "github.com/capturescene/capturescene/camera/fake"
	_ "github.com/capturescene/capturescene/camera/replaypcd"
	_ "github.com/capturescene/capturescene/camera/rgbd"
)

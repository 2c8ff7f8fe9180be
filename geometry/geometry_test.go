package geometry

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/capturescene/capturescene/pointcloud"
)

func TestBallPivotRadii(t *testing.T) {
	cloud := pointcloud.NewGrid(r3.Vector{X: -1}, 4, 0.2)
	for _, factor := range []float64{1, 2, 3.5} {
		radii, err := BallPivotRadii(cloud, factor)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(radii), test.ShouldEqual, 3)
		r := radii[0]
		test.That(t, r, test.ShouldAlmostEqual, 1.25*0.2/2)
		test.That(t, radii[1], test.ShouldAlmostEqual, factor*r)
		test.That(t, radii[2], test.ShouldAlmostEqual, 2*factor*r)
	}
}

func TestBallPivotRadiiDegenerate(t *testing.T) {
	_, err := BallPivotRadii(pointcloud.New(), 2)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = BallPivotRadii(pointcloud.NewFromPoints([]r3.Vector{{X: 1, Y: 2, Z: 3}}), 2)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "at least 2 points")

	// coincident points have a zero radius
	_, err = BallPivotRadii(pointcloud.NewFromPoints([]r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}), 2)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = BallPivotRadii(pointcloud.NewGrid(r3.Vector{}, 2, 1), 0)
	test.That(t, err, test.ShouldNotBeNil)
}

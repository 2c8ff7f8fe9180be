package fake

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/capturescene/capturescene/camera"
	"github.com/capturescene/capturescene/logging"
)

func TestFakeFrames(t *testing.T) {
	cfg := Config{Points: 300, Outliers: 5, Seed: 7}
	test.That(t, cfg.Validate("attrs"), test.ShouldBeNil)
	test.That(t, cfg.Radius, test.ShouldEqual, 0.5)

	cam := New(cfg, logging.NewTestLogger(t))
	first, err := cam.NextPointCloud(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Size(), test.ShouldEqual, 305)
	test.That(t, first.MetaData().HasNormal, test.ShouldBeTrue)
	test.That(t, first.MetaData().MinX, test.ShouldBeGreaterThanOrEqualTo, 0)

	second, err := cam.NextPointCloud(context.Background())
	test.That(t, err, test.ShouldBeNil)
	p1, _ := first.At(0)
	p2, _ := second.At(0)
	test.That(t, p1, test.ShouldNotResemble, p2)

	// the same seed replays the same frames
	again, err := New(cfg, logging.NewTestLogger(t)).NextPointCloud(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Points(), test.ShouldResemble, first.Points())

	test.That(t, cam.Close(context.Background()), test.ShouldBeNil)
	_, err = cam.NextPointCloud(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFakeRegistered(t *testing.T) {
	test.That(t, camera.IsRegistered(Model), test.ShouldBeTrue)

	src, err := camera.New(context.Background(), Model, camera.Attributes{"points": "50", "seed": 3}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cloud, err := src.NextPointCloud(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cloud.Size(), test.ShouldEqual, 50)

	_, err = camera.New(context.Background(), Model, camera.Attributes{"points": -1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = camera.New(context.Background(), Model, camera.Attributes{"colour": "red"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = camera.New(context.Background(), "nope", nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

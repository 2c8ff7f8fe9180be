package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/capturescene/capturescene/scene"
)

// CaptureAction captures a single point cloud, runs the requested filters
// and reconstruction against it, and writes the requested exports.
func CaptureAction(c *cli.Context) (err error) {
	filters := lo.Map(c.StringSlice(flagFilter), func(op string, _ int) scene.FilterOp { return scene.FilterOp(op) })
	for _, op := range filters {
		if !lo.Contains(scene.FilterOps, op) {
			return errors.Errorf("unknown filter %q, expected one of %s", op, joinOps(scene.FilterOps))
		}
	}
	method := scene.Method(c.String(flagReconstruct))
	if method != "" && !lo.Contains(scene.Methods, method) {
		return errors.Errorf("unknown reconstruction method %q, expected one of %s", method, joinOps(scene.Methods))
	}
	if c.String(flagMeshOut) != "" && method == "" {
		return errors.Errorf("--%s requires --%s", flagMeshOut, flagReconstruct)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	rt, err := newSceneRuntime(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, rt.Close(c.Context))
	}()

	ctrl := rt.controller
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Step", "Points", "Vertices", "Triangles", "Detail"})

	cloud, err := ctrl.Capture(c.Context)
	if err != nil {
		return err
	}
	t.AppendRow(table.Row{"capture", cloud.Size(), "", "", cfg.Camera.Model})

	params := ctrl.Settings().Get()
	for _, op := range filters {
		if cloud, err = ctrl.Filter(c.Context, op, params); err != nil {
			return err
		}
		t.AppendRow(table.Row{string(op), cloud.Size(), "", "", ""})
	}

	if method != "" {
		res, err := ctrl.Reconstruct(c.Context, method, params)
		if err != nil {
			return err
		}
		detail := ""
		if len(res.Radii) > 0 {
			detail = fmt.Sprintf("radii %.4g", res.Radii)
		}
		t.AppendRow(table.Row{string(method), "", res.Mesh.NumVertices(), res.Mesh.NumTriangles(), detail})
	}

	if path := c.String(flagCloudOut); path != "" {
		if path, err = ctrl.ExportPointCloud(c.Context, path); err != nil {
			return err
		}
		t.AppendRow(table.Row{"export", ctrl.View().Cloud.Size(), "", "", path})
	}
	if path := c.String(flagMeshOut); path != "" {
		if path, err = ctrl.ExportMesh(c.Context, path); err != nil {
			return err
		}
		m := ctrl.View().Mesh
		t.AppendRow(table.Row{"export", "", m.NumVertices(), m.NumTriangles(), path})
	}

	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/capturescene/capturescene/journal"
	"github.com/capturescene/capturescene/mesh"
	"github.com/capturescene/capturescene/pointcloud"
)

func formatVec(v r3.Vector) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// InspectAction prints a summary of each point cloud or mesh file given, and
// the recent entries of a journal when --journal is set.
func InspectAction(c *cli.Context) (err error) {
	if c.NArg() == 0 && c.String(flagJournal) == "" {
		return errors.New("nothing to inspect, give files or --journal")
	}

	if c.NArg() > 0 {
		t := table.NewWriter()
		t.AppendHeader(table.Row{"File", "Kind", "Points", "Triangles", "Normals", "Color", "Min", "Max"})
		for _, path := range c.Args().Slice() {
			row, err := inspectFile(path)
			if err != nil {
				return err
			}
			t.AppendRow(row)
		}
		fmt.Fprintln(c.App.Writer, t.Render())
	}

	if path := c.String(flagJournal); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, j.Close())
		}()
		ops, err := j.List(c.Context, journal.Query{Limit: c.Int(flagLimit)})
		if err != nil {
			return err
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Started", "Kind", "Name", "Points", "Vertices", "Triangles", "Duration", "Error"})
		for _, op := range ops {
			t.AppendRow(table.Row{
				op.StartedAt.Local().Format(time.DateTime),
				string(op.Kind),
				op.Name,
				op.Points,
				op.Vertices,
				op.Triangles,
				op.Duration.Round(time.Millisecond).String(),
				op.Error,
			})
		}
		fmt.Fprintln(c.App.Writer, t.Render())
	}
	return nil
}

func inspectFile(path string) (table.Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcd", ".las":
		var (
			cloud *pointcloud.PointCloud
			err   error
		)
		if strings.EqualFold(filepath.Ext(path), ".las") {
			cloud, err = pointcloud.NewFromLASFile(path)
		} else {
			cloud, err = pointcloud.NewFromPCDFile(path)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %q", path)
		}
		meta := cloud.MetaData()
		row := table.Row{path, "point cloud", cloud.Size(), "", meta.HasNormal, meta.HasColor, "", ""}
		if cloud.Size() > 0 {
			row[6], row[7] = formatVec(meta.Min()), formatVec(meta.Max())
		}
		return row, nil
	case ".ply":
		m, err := mesh.NewFromPLYFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %q", path)
		}
		kind := "mesh"
		if m.NumTriangles() == 0 {
			kind = "point cloud"
		}
		row := table.Row{path, kind, m.NumVertices(), m.NumTriangles(), m.HasNormals(), false, "", ""}
		if m.NumVertices() > 0 {
			lo, hi := m.Bounds()
			row[6], row[7] = formatVec(lo), formatVec(hi)
		}
		return row, nil
	default:
		return nil, errors.Errorf("cannot inspect %q, expected a .pcd, .las or .ply file", path)
	}
}

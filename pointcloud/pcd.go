package pointcloud

import (
	"bufio"
	"encoding/binary"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/multierr"
)

// toPCL converts the cloud into a binary pcgol cloud with x y z fields, plus
// normal_x normal_y normal_z and rgb when any point carries them.
func toPCL(cloud *PointCloud) *pc.PointCloud {
	meta := cloud.MetaData()
	fields := []string{"x", "y", "z"}
	if meta.HasNormal {
		fields = append(fields, "normal_x", "normal_y", "normal_z")
	}
	if meta.HasColor {
		fields = append(fields, "rgb")
	}
	header := pc.PointCloudHeader{
		Version:   0.7,
		Fields:    fields,
		Size:      make([]int, len(fields)),
		Type:      make([]string, len(fields)),
		Count:     make([]int, len(fields)),
		Width:     cloud.Size(),
		Height:    1,
		Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
	}
	for i, f := range fields {
		header.Size[i] = 4
		header.Count[i] = 1
		header.Type[i] = "F"
		if f == "rgb" {
			header.Type[i] = "U"
		}
	}

	pp := &pc.PointCloud{
		PointCloudHeader: header,
		Points:           cloud.Size(),
	}
	stride := pp.Stride()
	pp.Data = make([]byte, stride*cloud.Size())

	putFloat := func(buf []byte, v float64) {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	}
	cloud.Iterate(func(i int, p r3.Vector, d Data) bool {
		buf := pp.Data[i*stride : (i+1)*stride]
		putFloat(buf[0:], p.X)
		putFloat(buf[4:], p.Y)
		putFloat(buf[8:], p.Z)
		off := 12
		if meta.HasNormal {
			n := d.Normal()
			putFloat(buf[off:], n.X)
			putFloat(buf[off+4:], n.Y)
			putFloat(buf[off+8:], n.Z)
			off += 12
		}
		if meta.HasColor {
			binary.LittleEndian.PutUint32(buf[off:], colorToPCDInt(d))
		}
		return true
	})
	return pp
}

type pcdField struct {
	offset int
	size   int
	typ    string
}

func pcdFields(h pc.PointCloudHeader) map[string]pcdField {
	fields := make(map[string]pcdField, len(h.Fields))
	var offset int
	for i, name := range h.Fields {
		fields[name] = pcdField{offset: offset, size: h.Size[i], typ: h.Type[i]}
		offset += h.Size[i] * h.Count[i]
	}
	return fields
}

func (f pcdField) float(buf []byte) (float64, error) {
	b := buf[f.offset : f.offset+f.size]
	switch {
	case f.typ == "F" && f.size == 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case f.typ == "F" && f.size == 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case f.typ == "U" && f.size == 1:
		return float64(b[0]), nil
	case f.typ == "U" && f.size == 2:
		return float64(binary.LittleEndian.Uint16(b)), nil
	case f.typ == "U" && f.size == 4:
		return float64(binary.LittleEndian.Uint32(b)), nil
	case f.typ == "I" && f.size == 1:
		return float64(int8(b[0])), nil
	case f.typ == "I" && f.size == 2:
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case f.typ == "I" && f.size == 4:
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	default:
		return 0, errors.Errorf("unsupported PCD field type %s%d", f.typ, f.size)
	}
}

// fromPCL decodes a pcgol cloud. Fields other than position, normal and rgb
// are ignored.
func fromPCL(pp *pc.PointCloud) (*PointCloud, error) {
	fields := pcdFields(pp.PointCloudHeader)
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := fields[name]; !ok {
			return nil, errors.Errorf("PCD is missing field %q", name)
		}
	}
	nx, hasNX := fields["normal_x"]
	ny, hasNY := fields["normal_y"]
	nz, hasNZ := fields["normal_z"]
	hasNormal := hasNX && hasNY && hasNZ
	rgb, hasColor := fields["rgb"]
	if hasColor && rgb.size != 4 {
		return nil, errors.Errorf("unsupported rgb field size %d", rgb.size)
	}

	stride := pp.Stride()
	if stride*pp.Points > len(pp.Data) {
		return nil, errors.Errorf("PCD data holds %d bytes, expected %d", len(pp.Data), stride*pp.Points)
	}
	cloud := NewWithPrealloc(pp.Points)
	readVec := func(buf []byte, fx, fy, fz pcdField) (r3.Vector, error) {
		x, err := fx.float(buf)
		if err != nil {
			return r3.Vector{}, err
		}
		y, err := fy.float(buf)
		if err != nil {
			return r3.Vector{}, err
		}
		z, err := fz.float(buf)
		if err != nil {
			return r3.Vector{}, err
		}
		return r3.Vector{X: x, Y: y, Z: z}, nil
	}
	for i := 0; i < pp.Points; i++ {
		buf := pp.Data[i*stride : (i+1)*stride]
		p, err := readVec(buf, fields["x"], fields["y"], fields["z"])
		if err != nil {
			return nil, err
		}
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
			continue
		}
		d := NewBasicData()
		if hasNormal {
			n, err := readVec(buf, nx, ny, nz)
			if err != nil {
				return nil, err
			}
			d = d.WithNormal(n)
		}
		if hasColor {
			d = d.WithColor(pcdIntToColor(binary.LittleEndian.Uint32(buf[rgb.offset:])))
		}
		cloud.Append(p, d)
	}
	return cloud, nil
}

// ToPCD writes the cloud to out in binary PCD format.
func ToPCD(cloud *PointCloud, out io.Writer) error {
	return pc.Marshal(toPCL(cloud), out)
}

// ReadPCD reads a PCD stream. Points with NaN positions are dropped.
func ReadPCD(in io.Reader) (*PointCloud, error) {
	pp, err := pc.Unmarshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse PCD")
	}
	return fromPCL(pp)
}

// WriteToPCDFile writes the cloud to fn in binary PCD format.
func WriteToPCDFile(cloud *PointCloud, fn string) (err error) {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w); err != nil {
		return err
	}
	return w.Flush()
}

// NewFromPCDFile reads a PCD file.
func NewFromPCDFile(fn string) (*PointCloud, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return ReadPCD(bufio.NewReader(f))
}

func colorToPCDInt(d Data) uint32 {
	r, g, b := d.RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func pcdIntToColor(c uint32) color.NRGBA {
	return color.NRGBA{
		R: uint8((c >> 16) & 0xff),
		G: uint8((c >> 8) & 0xff),
		B: uint8(c & 0xff),
		A: 255,
	}
}

// Package config loads the YAML run description used by the subalpha
// command.
//
// Example:
//
//	dtype: bfloat16
//	alpha: 2.5
//	grid: [8, 8]
//	a:
//	  shape: [1, 3, 320, 384]
//	  layout: height_sharded
//	  shard:
//	    grid: [8, 4]
//	    shape: [32, 384]
//	b:
//	  shape: [1, 3, 320, 1]
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/tensor"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Shard places a sharded operand.
type Shard struct {
	Grid        [2]uint32 `yaml:"grid"`  // Cores, x then y, starting at (0,0).
	Shape       [2]uint32 `yaml:"shape"` // Elements, height then width.
	Orientation string    `yaml:"orientation,omitempty"`
}

// Operand describes one tensor of the run.
type Operand struct {
	Shape  []int  `yaml:"shape,omitempty"`
	Layout string `yaml:"layout,omitempty"`
	Shard  *Shard `yaml:"shard,omitempty"`
}

// Run is a complete run description.
type Run struct {
	DType  string    `yaml:"dtype"`
	Alpha  float32   `yaml:"alpha"`
	Grid   [2]uint32 `yaml:"grid"`
	A      Operand   `yaml:"a"`
	B      Operand   `yaml:"b"`
	Output *Operand  `yaml:"output,omitempty"` // Placement only; shape is derived.

	// Seed of the generated input data.
	Seed uint64 `yaml:"seed"`
	// Workers bounds concurrent core launches. Zero uses every CPU.
	Workers int `yaml:"workers"`
}

// Default returns a small interleaved run.
func Default() Run {
	return Run{
		DType: tensor.BFloat16.String(),
		Alpha: 1,
		Grid:  [2]uint32{8, 8},
		A:     Operand{Shape: []int{1, 1, 64, 64}},
		B:     Operand{Shape: []int{1, 1, 64, 64}},
		Seed:  1,
	}
}

// Load reads a run from path. Fields missing from the file keep their
// Default values.
func Load(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return Run{}, errors.Wrap(err, "open run config")
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		return Run{}, errors.Wrapf(err, "%s", path)
	}
	return r, nil
}

// Decode reads a run from YAML. Unknown fields are rejected.
func Decode(r io.Reader) (Run, error) {
	run := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&run); err != nil && !errors.Is(err, io.EOF) {
		return Run{}, errors.Wrap(err, "decode run config")
	}
	if err := run.Validate(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Encode returns the YAML form of r.
func (r Run) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(err, "encode run config")
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks every field that can be checked without a device.
func (r Run) Validate() error {
	if _, err := r.DataType(); err != nil {
		return err
	}
	if r.Grid[0] == 0 || r.Grid[1] == 0 {
		return errors.Errorf("grid %v has a zero dimension", r.Grid)
	}
	if _, _, err := r.Descriptors(); err != nil {
		return err
	}
	if _, err := r.OutputMemory(); err != nil {
		return err
	}
	return nil
}

// DataType returns the parsed element type.
func (r Run) DataType() (tensor.DataType, error) {
	dt, ok := tensor.ParseDataType(r.DType)
	if !ok {
		return 0, errors.Errorf("unknown dtype %q", r.DType)
	}
	return dt, nil
}

// WorkerGrid returns the cores work is spread over.
func (r Run) WorkerGrid() grid.CoreRangeSet {
	return grid.Rect(r.Grid[0], r.Grid[1])
}

// Descriptors returns the descriptors of A and B.
func (r Run) Descriptors() (a, b tensor.Descriptor, err error) {
	dt, err := r.DataType()
	if err != nil {
		return a, b, err
	}
	if a, err = r.A.descriptor(dt); err != nil {
		return a, b, errors.Wrap(err, "a")
	}
	if b, err = r.B.descriptor(dt); err != nil {
		return a, b, errors.Wrap(err, "b")
	}
	return a, b, nil
}

// OutputMemory returns the requested output placement, nil when the run
// leaves it to the operation.
func (r Run) OutputMemory() (*tensor.MemoryConfig, error) {
	if r.Output == nil {
		return nil, nil
	}
	mc, err := r.Output.memory()
	if err != nil {
		return nil, errors.Wrap(err, "output")
	}
	return &mc, nil
}

func (o Operand) descriptor(dt tensor.DataType) (tensor.Descriptor, error) {
	shape := tensor.Shape(o.Shape)
	if err := shape.Validate(); err != nil {
		return tensor.Descriptor{}, err
	}
	mc, err := o.memory()
	if err != nil {
		return tensor.Descriptor{}, err
	}
	desc := tensor.NewDescriptor(shape, dt).WithMemory(mc)
	return desc, desc.Validate()
}

func (o Operand) memory() (tensor.MemoryConfig, error) {
	if o.Layout == "" {
		o.Layout = tensor.Interleaved.String()
	}
	layout, ok := tensor.ParseMemoryLayout(o.Layout)
	if !ok {
		return tensor.MemoryConfig{}, errors.Errorf("unknown layout %q", o.Layout)
	}
	if !layout.IsSharded() {
		if o.Shard != nil {
			return tensor.MemoryConfig{}, errors.New("shard spec on an interleaved operand")
		}
		return tensor.InterleavedConfig, nil
	}
	if o.Shard == nil {
		return tensor.MemoryConfig{}, errors.Errorf("%s operand needs a shard spec", layout)
	}

	spec := &tensor.ShardSpec{Grid: grid.Rect(o.Shard.Grid[0], o.Shard.Grid[1]), Shape: o.Shard.Shape}
	switch o.Shard.Orientation {
	case "", tensor.RowMajor.String():
	case tensor.ColMajor.String():
		spec.Orientation = tensor.ColMajor
	default:
		return tensor.MemoryConfig{}, errors.Errorf("unknown shard orientation %q", o.Shard.Orientation)
	}
	return tensor.MemoryConfig{Layout: layout, Shard: spec}, nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package subalpha computes C = A - B*alpha on a tiled multi-core device.
//
// The output is split into 32x32 tiles and partitioned over a grid of
// cores. Every core runs a reader, a compute and a writer stage connected
// by bounded tile queues. A and B may broadcast against each other along
// rows, columns, whole planes or outer dimensions, and any operand may be
// sharded across cores.
//
// Example:
//
//	dev := subalpha.NewDevice(subalpha.DefaultDeviceConfig())
//	a, _ := dev.FromHost(tensor.NewDescriptor(tensor.Shape{1, 3, 320, 384}, tensor.BFloat16), aData)
//	b, _ := dev.FromHost(tensor.NewDescriptor(tensor.Shape{1, 3, 320, 1}, tensor.BFloat16), bData)
//
//	op := subalpha.New(dev, subalpha.DefaultOptions())
//	c, err := op.Invoke(ctx, a, b, 2.5)
//	out, _ := dev.ToHost(c)
//
// Repeated invocations with the same shapes, types and placements reuse a
// cached program and only rewrite its runtime arguments.
package subalpha

import (
	"github.com/born-ml/subalpha/internal/device"
	"github.com/born-ml/subalpha/internal/grid"
	"github.com/born-ml/subalpha/internal/parallel"
	"github.com/born-ml/subalpha/internal/subalpha"
	"github.com/born-ml/subalpha/tensor"
)

// Device owns the storage of every tensor allocated on it.
type Device = device.Device

// DeviceConfig describes a device.
type DeviceConfig = device.Config

// Tensor is a tensor resident on a Device.
type Tensor = device.Tensor

// Operation runs subtract-alpha and caches its programs.
type Operation = subalpha.Operation

// Options configures an Operation.
type Options = subalpha.Options

// ConfigError reports an invocation rejected before any work started.
type ConfigError = subalpha.ConfigError

// CoreCoord is the (x, y) position of a core.
type CoreCoord = grid.CoreCoord

// CoreRangeSet is a set of non-overlapping core rectangles.
type CoreRangeSet = grid.CoreRangeSet

// ParallelConfig bounds host concurrency.
type ParallelConfig = parallel.Config

// Errors returned by device operations.
var (
	ErrL1Exhausted    = device.ErrL1Exhausted
	ErrUnknownAddress = device.ErrUnknownAddress
	ErrHostData       = device.ErrHostData
)

// NewDevice creates a device.
func NewDevice(cfg DeviceConfig) *Device {
	return device.New(cfg)
}

// DefaultDeviceConfig returns an 8x8 device.
func DefaultDeviceConfig() DeviceConfig {
	return device.DefaultConfig()
}

// New returns an operation bound to dev.
func New(dev *Device, opts Options) *Operation {
	return subalpha.New(dev, opts)
}

// DefaultOptions returns options that spread work over the whole device.
func DefaultOptions() Options {
	return subalpha.DefaultOptions()
}

// Rect returns the x by y core rectangle anchored at (0,0).
func Rect(x, y uint32) CoreRangeSet {
	return grid.Rect(x, y)
}

// OutputDescriptor returns the descriptor of the tensor Invoke allocates
// for a and b. A nil mc lets the output follow a sharded input.
func OutputDescriptor(a, b tensor.Descriptor, mc *tensor.MemoryConfig) (tensor.Descriptor, error) {
	return subalpha.OutputDescriptor(a, b, mc)
}

// Reference computes a - b*alpha on the host, rounding like the device.
// It returns the result in row-major order and its shape.
func Reference(dt tensor.DataType, aShape tensor.Shape, a []float32, bShape tensor.Shape, b []float32, alpha float32) ([]float32, tensor.Shape, error) {
	return device.Reference(dt, aShape, a, bShape, b, alpha, parallel.DefaultConfig())
}

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luxfi/bsk/device"
)

// DeviceBootstrapKey is a bootstrapping key resident in accelerator memory,
// sharded as one device buffer per participating device. It is immutable
// once distributed: buffers are never resized or partially overwritten, and
// re-keying means building a new key and closing the old one. Two keys built
// from the same host key are distinct owners of distinct device memory.
type DeviceBootstrapKey[T Torus] struct {
	params   Parameters
	buffers  []*device.Buffer // caller-supplied device order
	shards   []Shard          // same order as buffers
	byDevice map[int]int      // device id -> index into buffers/shards
	closed   atomic.Bool
}

// Parameters returns the key's dimension bundle.
func (k *DeviceBootstrapKey[T]) Parameters() Parameters { return k.params }

// PolynomialSize returns the ring polynomial degree.
func (k *DeviceBootstrapKey[T]) PolynomialSize() int { return k.params.PolynomialSize() }

// InputLWEDimension returns the input ciphertext space dimension.
func (k *DeviceBootstrapKey[T]) InputLWEDimension() int { return k.params.InputLWEDimension() }

// GLWEDimension returns the GLWE ring module dimension.
func (k *DeviceBootstrapKey[T]) GLWEDimension() int { return k.params.GLWEDimension() }

// DecompositionLevelCount returns the number of gadget decomposition digits.
func (k *DeviceBootstrapKey[T]) DecompositionLevelCount() int {
	return k.params.DecompositionLevelCount()
}

// DecompositionBaseLog returns log2 of the gadget decomposition base.
func (k *DeviceBootstrapKey[T]) DecompositionBaseLog() int { return k.params.DecompositionBaseLog() }

// WidthBits returns the coefficient width (32 or 64) for metadata records.
func (k *DeviceBootstrapKey[T]) WidthBits() int { return widthBits[T]() }

// Buffers returns the per-device buffers in the order the devices were
// supplied to Distribute, independent of transfer completion order. The
// returned slice is a copy; the buffers stay owned by the key.
func (k *DeviceBootstrapKey[T]) Buffers() []*device.Buffer {
	out := make([]*device.Buffer, len(k.buffers))
	copy(out, k.buffers)
	return out
}

// Shards returns the per-device shard descriptors, in buffer order.
func (k *DeviceBootstrapKey[T]) Shards() []Shard {
	out := make([]Shard, len(k.shards))
	copy(out, k.shards)
	return out
}

// DeviceIDs returns the devices the key is distributed to, in buffer order.
func (k *DeviceBootstrapKey[T]) DeviceIDs() []int {
	out := make([]int, len(k.shards))
	for i, s := range k.shards {
		out[i] = s.DeviceID
	}
	return out
}

// BufferFor is the accessor surface for kernel dispatch: it returns the
// buffer and shard descriptor for one device, so dispatch code can compute
// offsets into the shard without knowing the distribution policy. Retrieved
// pointers are borrowed for a single kernel invocation and must not outlive
// the key.
func (k *DeviceBootstrapKey[T]) BufferFor(deviceID int) (*device.Buffer, Shard, error) {
	if k.closed.Load() {
		return nil, Shard{}, ErrKeyClosed
	}
	i, ok := k.byDevice[deviceID]
	if !ok {
		return nil, Shard{}, fmt.Errorf("device %d: %w", deviceID, ErrDeviceNotPresent)
	}
	return k.buffers[i], k.shards[i], nil
}

// Gather reads every shard back and concatenates them in device order,
// reproducing the host key's coefficient tensor.
func (k *DeviceBootstrapKey[T]) Gather() ([]T, error) {
	if k.closed.Load() {
		return nil, ErrKeyClosed
	}

	out := make([]T, 0, k.params.ElementCount())
	for _, buf := range k.buffers {
		data := make([]byte, buf.ByteLen())
		if err := buf.CopyOut(data); err != nil {
			return nil, fmt.Errorf("gather: %w", err)
		}
		out = append(out, decodeCoeffs[T](data)...)
	}
	return out, nil
}

// Close releases all device buffers, each freed on its own device, in
// parallel. Safe to call once; later calls are no-ops. The first free error
// is returned, but every buffer is released regardless.
func (k *DeviceBootstrapKey[T]) Close() error {
	if k.closed.Swap(true) {
		return nil
	}
	return freeAll(k.buffers)
}

// freeAll releases a set of buffers concurrently, skipping nil entries, and
// reports the first error. Used both by Close and by the mid-construction
// rollback path.
func freeAll(buffers []*device.Buffer) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, buf := range buffers {
		if buf == nil {
			continue
		}
		wg.Add(1)
		go func(b *device.Buffer) {
			defer wg.Done()
			if err := b.Free(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(buf)
	}
	wg.Wait()
	return firstErr
}

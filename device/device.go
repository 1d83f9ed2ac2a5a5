// Package device abstracts the accelerator memory runtime used by the
// bootstrap-key layer: allocation, host-to-device transfer, readback and
// release, with devices addressed by integer identifiers.
//
// Two runtimes are provided: a CUDA-backed runtime available on builds with
// GPU support, and a pure-Go simulated runtime used everywhere else and in
// tests. Both satisfy Runtime, so the key-distribution code above this
// package is identical on all platforms.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package device

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Runtime errors.
var (
	// ErrInvalidDevice is returned for a device id the runtime does not expose.
	ErrInvalidDevice = errors.New("invalid device id")

	// ErrOutOfMemory is returned when a device cannot satisfy an allocation.
	ErrOutOfMemory = errors.New("device memory exhausted")

	// ErrLengthMismatch is returned when a transfer's host slice does not
	// match the device region's byte length.
	ErrLengthMismatch = errors.New("transfer length mismatch")

	// ErrFreed is returned when a buffer is used or freed after Free.
	ErrFreed = errors.New("device buffer already freed")
)

// Mem is an opaque handle to one contiguous device allocation, produced and
// consumed by a single Runtime.
type Mem interface {
	// DeviceID reports the device holding the allocation.
	DeviceID() int
	// ByteLen reports the allocation size in bytes.
	ByteLen() int
	// Ptr returns the raw device address for kernel dispatch. The pointer is
	// borrowed: it must not be retained past the owning buffer's lifetime.
	Ptr() unsafe.Pointer
}

// Runtime is the device-memory capability the bootstrap-key layer relies on.
// Implementations must fail with a distinguishable error rather than corrupt
// memory or hang: Alloc reports ErrInvalidDevice or ErrOutOfMemory, transfers
// report ErrLengthMismatch or a copy error. Transfers are synchronous from
// the caller's point of view; no reader may observe partially written memory
// after CopyIn returns.
type Runtime interface {
	// NumDevices reports how many devices the runtime exposes.
	NumDevices() int
	// Alloc reserves byteLen bytes on the given device.
	Alloc(deviceID, byteLen int) (Mem, error)
	// CopyIn writes src to the device region. len(src) must equal ByteLen.
	CopyIn(dst Mem, src []byte) error
	// CopyOut reads the device region back to host. len(dst) must equal ByteLen.
	CopyOut(dst []byte, src Mem) error
	// Free releases the allocation. Called exactly once per Mem.
	Free(mem Mem) error
}

// Buffer owns exclusively one contiguous block of device memory. It is
// created by Allocate and released by Free; no other entity may free or
// reallocate the underlying region. A second Free is a programming error and
// reported as ErrFreed.
type Buffer struct {
	rt    Runtime
	mem   Mem
	freed atomic.Bool
}

// Allocate reserves byteLen bytes on deviceID and wraps the allocation in an
// owning Buffer.
func Allocate(rt Runtime, deviceID, byteLen int) (*Buffer, error) {
	mem, err := rt.Alloc(deviceID, byteLen)
	if err != nil {
		return nil, fmt.Errorf("device %d: alloc %d bytes: %w", deviceID, byteLen, err)
	}
	return &Buffer{rt: rt, mem: mem}, nil
}

// DeviceID reports the device holding the buffer.
func (b *Buffer) DeviceID() int { return b.mem.DeviceID() }

// ByteLen reports the buffer size in bytes.
func (b *Buffer) ByteLen() int { return b.mem.ByteLen() }

// Ptr returns the raw device address for kernel dispatch. The pointer is
// borrowed for the duration of a single kernel invocation.
func (b *Buffer) Ptr() unsafe.Pointer { return b.mem.Ptr() }

// CopyIn transfers src into the buffer. len(src) must equal ByteLen. The
// transfer is fenced before return.
func (b *Buffer) CopyIn(src []byte) error {
	if b.freed.Load() {
		return ErrFreed
	}
	if err := b.rt.CopyIn(b.mem, src); err != nil {
		return fmt.Errorf("device %d: copy in: %w", b.DeviceID(), err)
	}
	return nil
}

// CopyOut transfers the buffer contents back to host. len(dst) must equal
// ByteLen.
func (b *Buffer) CopyOut(dst []byte) error {
	if b.freed.Load() {
		return ErrFreed
	}
	if err := b.rt.CopyOut(dst, b.mem); err != nil {
		return fmt.Errorf("device %d: copy out: %w", b.DeviceID(), err)
	}
	return nil
}

// Free releases the device allocation. Exactly one call succeeds; any
// further call returns ErrFreed.
func (b *Buffer) Free() error {
	if b.freed.Swap(true) {
		return ErrFreed
	}
	return b.rt.Free(b.mem)
}

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"sync"
	"unsafe"
)

// SimConfig configures the simulated runtime.
type SimConfig struct {
	// Devices is the number of simulated devices.
	Devices int
	// MemPerDevice caps each device's memory in bytes. 0 means unlimited.
	MemPerDevice int64
}

// DefaultSimConfig returns a 4-device runtime with unlimited memory.
func DefaultSimConfig() SimConfig {
	return SimConfig{Devices: 4}
}

// SimRuntime is a pure-Go Runtime backed by host memory. It tracks live
// allocations and per-device usage, and supports injecting transfer faults,
// which makes the multi-device distribution paths testable on machines
// without accelerators.
type SimRuntime struct {
	cfg SimConfig

	mu         sync.Mutex
	memUsed    []int64
	live       int
	copyFaults map[int]int // device id -> remaining CopyIn faults
}

type simMem struct {
	deviceID int
	data     []byte
}

func (m *simMem) DeviceID() int { return m.deviceID }
func (m *simMem) ByteLen() int  { return len(m.data) }
func (m *simMem) Ptr() unsafe.Pointer {
	if len(m.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&m.data[0])
}

// NewSimRuntime creates a simulated runtime.
func NewSimRuntime(cfg SimConfig) *SimRuntime {
	if cfg.Devices <= 0 {
		cfg.Devices = 1
	}
	return &SimRuntime{
		cfg:        cfg,
		memUsed:    make([]int64, cfg.Devices),
		copyFaults: make(map[int]int),
	}
}

// NumDevices reports the configured device count.
func (r *SimRuntime) NumDevices() int { return r.cfg.Devices }

// Alloc reserves byteLen bytes on the given device.
func (r *SimRuntime) Alloc(deviceID, byteLen int) (Mem, error) {
	if deviceID < 0 || deviceID >= r.cfg.Devices {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDevice, deviceID)
	}
	if byteLen <= 0 {
		return nil, fmt.Errorf("%w: non-positive length %d", ErrOutOfMemory, byteLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cfg.MemPerDevice > 0 && r.memUsed[deviceID]+int64(byteLen) > r.cfg.MemPerDevice {
		return nil, fmt.Errorf("%w: device %d: %d used, %d requested, %d limit",
			ErrOutOfMemory, deviceID, r.memUsed[deviceID], byteLen, r.cfg.MemPerDevice)
	}

	r.memUsed[deviceID] += int64(byteLen)
	r.live++
	return &simMem{deviceID: deviceID, data: make([]byte, byteLen)}, nil
}

// CopyIn writes src to the simulated device region.
func (r *SimRuntime) CopyIn(dst Mem, src []byte) error {
	m, ok := dst.(*simMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}
	if len(src) != len(m.data) {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrLengthMismatch, len(src), len(m.data))
	}

	r.mu.Lock()
	if n := r.copyFaults[m.deviceID]; n > 0 {
		r.copyFaults[m.deviceID] = n - 1
		r.mu.Unlock()
		return fmt.Errorf("injected copy fault on device %d", m.deviceID)
	}
	r.mu.Unlock()

	copy(m.data, src)
	return nil
}

// CopyOut reads the simulated device region back to host.
func (r *SimRuntime) CopyOut(dst []byte, src Mem) error {
	m, ok := src.(*simMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}
	if len(dst) != len(m.data) {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrLengthMismatch, len(dst), len(m.data))
	}
	copy(dst, m.data)
	return nil
}

// Free releases a simulated allocation.
func (r *SimRuntime) Free(mem Mem) error {
	m, ok := mem.(*simMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.memUsed[m.deviceID] -= int64(len(m.data))
	r.live--
	m.data = nil
	return nil
}

// LiveAllocs reports the number of allocations not yet freed, across all
// devices. Zero after every owning key has been closed.
func (r *SimRuntime) LiveAllocs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// MemUsed reports bytes currently allocated on a device.
func (r *SimRuntime) MemUsed(deviceID int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deviceID < 0 || deviceID >= len(r.memUsed) {
		return 0
	}
	return r.memUsed[deviceID]
}

// InjectCopyFault makes the next n CopyIn calls touching deviceID fail.
// Test aid for exercising mid-construction rollback.
func (r *SimRuntime) InjectCopyFault(deviceID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.copyFaults[deviceID] = n
}

//go:build (linux || windows) && cgo && cuda

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package device

/*
#cgo linux LDFLAGS: -lcudart
#cgo windows LDFLAGS: -lcudart

#include <cuda_runtime.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/luxfi/mlx"
)

// CudaRuntime implements Runtime over the mlx multi-GPU bindings, with
// host<->device transfers through the CUDA runtime API.
type CudaRuntime struct {
	mgpu    *mlx.MultiGPU
	numGPUs int

	// SetDevice is process-global in the CUDA runtime; serialize the
	// set-device + memcpy pairs.
	mu sync.Mutex
}

type cudaMem struct {
	deviceID int
	byteLen  int
	ptr      unsafe.Pointer
}

func (m *cudaMem) DeviceID() int       { return m.deviceID }
func (m *cudaMem) ByteLen() int        { return m.byteLen }
func (m *cudaMem) Ptr() unsafe.Pointer { return m.ptr }

// NewCudaRuntime initializes up to numGPUs devices (0 = all available) and
// enables peer access where the topology allows it.
func NewCudaRuntime(numGPUs int) (*CudaRuntime, error) {
	if numGPUs <= 0 {
		numGPUs = 8
	}

	mgpu, err := mlx.InitMultiGPU(numGPUs)
	if err != nil {
		return nil, fmt.Errorf("multi-GPU init failed: %w", err)
	}

	n := mgpu.NumGPUs()
	if n == 0 {
		return nil, errors.New("no GPUs available")
	}

	// Peer access is best effort; transfers fall back to staging through host.
	_ = mgpu.EnablePeerAccess()

	return &CudaRuntime{mgpu: mgpu, numGPUs: n}, nil
}

// NumDevices reports the number of initialized GPUs.
func (r *CudaRuntime) NumDevices() int { return r.numGPUs }

// Alloc reserves byteLen bytes on the given GPU.
func (r *CudaRuntime) Alloc(deviceID, byteLen int) (Mem, error) {
	if deviceID < 0 || deviceID >= r.numGPUs {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDevice, deviceID)
	}
	ptr := r.mgpu.Malloc(deviceID, uint64(byteLen))
	if ptr == nil {
		return nil, fmt.Errorf("%w: device %d: %d bytes", ErrOutOfMemory, deviceID, byteLen)
	}
	return &cudaMem{deviceID: deviceID, byteLen: byteLen, ptr: ptr}, nil
}

// CopyIn transfers src to the GPU region, fenced before return.
func (r *CudaRuntime) CopyIn(dst Mem, src []byte) error {
	m, ok := dst.(*cudaMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}
	if len(src) != m.byteLen {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrLengthMismatch, len(src), m.byteLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mgpu.SetDevice(m.deviceID)
	rc := C.cudaMemcpy(m.ptr, unsafe.Pointer(&src[0]), C.size_t(len(src)), C.cudaMemcpyHostToDevice)
	if rc != C.cudaSuccess {
		return fmt.Errorf("cudaMemcpy host->device %d: %s", m.deviceID, C.GoString(C.cudaGetErrorString(rc)))
	}
	return nil
}

// CopyOut transfers the GPU region back to host.
func (r *CudaRuntime) CopyOut(dst []byte, src Mem) error {
	m, ok := src.(*cudaMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}
	if len(dst) != m.byteLen {
		return fmt.Errorf("%w: host %d bytes, device %d bytes", ErrLengthMismatch, len(dst), m.byteLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mgpu.SetDevice(m.deviceID)
	rc := C.cudaMemcpy(unsafe.Pointer(&dst[0]), m.ptr, C.size_t(len(dst)), C.cudaMemcpyDeviceToHost)
	if rc != C.cudaSuccess {
		return fmt.Errorf("cudaMemcpy device %d->host: %s", m.deviceID, C.GoString(C.cudaGetErrorString(rc)))
	}
	return nil
}

// Free releases a GPU allocation on its own device context.
func (r *CudaRuntime) Free(mem Mem) error {
	m, ok := mem.(*cudaMem)
	if !ok {
		return fmt.Errorf("%w: foreign mem handle", ErrInvalidDevice)
	}
	r.mgpu.Free(m.deviceID, m.ptr)
	m.ptr = nil
	return nil
}

// Shutdown tears down the GPU contexts. All buffers must be freed first.
func (r *CudaRuntime) Shutdown() {
	r.mgpu.Shutdown()
}

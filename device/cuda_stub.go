//go:build !(linux && cgo && cuda) && !(windows && cgo && cuda)

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package device

import "errors"

// ErrNoCUDA is returned when CUDA support is not compiled in.
var ErrNoCUDA = errors.New("CUDA runtime not available on this platform")

// CudaRuntime is a stub on platforms without CUDA support. Use SimRuntime.
type CudaRuntime struct{}

// NewCudaRuntime returns an error on non-CUDA platforms.
func NewCudaRuntime(numGPUs int) (*CudaRuntime, error) {
	return nil, ErrNoCUDA
}

// NumDevices returns 0 on non-CUDA platforms.
func (r *CudaRuntime) NumDevices() int { return 0 }

// Alloc is not available without CUDA.
func (r *CudaRuntime) Alloc(deviceID, byteLen int) (Mem, error) { return nil, ErrNoCUDA }

// CopyIn is not available without CUDA.
func (r *CudaRuntime) CopyIn(dst Mem, src []byte) error { return ErrNoCUDA }

// CopyOut is not available without CUDA.
func (r *CudaRuntime) CopyOut(dst []byte, src Mem) error { return ErrNoCUDA }

// Free is not available without CUDA.
func (r *CudaRuntime) Free(mem Mem) error { return ErrNoCUDA }

// Shutdown is a no-op without CUDA.
func (r *CudaRuntime) Shutdown() {}

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import "errors"

// Error taxonomy for key distribution and access. All failures during a
// multi-device construction roll back already-acquired device memory before
// one of these is returned; nothing is retried or swallowed inside this
// package.
var (
	// ErrParameterMismatch is returned when the host key's element count
	// disagrees with the supplied Parameters. Fatal to the distribution call.
	ErrParameterMismatch = errors.New("host key size inconsistent with parameters")

	// ErrAllocationFailure is returned when a device cannot satisfy a shard
	// allocation (out of memory or invalid device id). The caller may retry
	// on fewer or different devices.
	ErrAllocationFailure = errors.New("device allocation failed")

	// ErrTransferFailure is returned when a host-to-device copy fails during
	// construction, after full rollback of the partial key.
	ErrTransferFailure = errors.New("host-to-device transfer failed")

	// ErrDeviceNotPresent is returned by the accessor surface for a device id
	// the key was not distributed to.
	ErrDeviceNotPresent = errors.New("key not distributed to device")

	// ErrKeyClosed is returned when a closed key is queried or read back.
	ErrKeyClosed = errors.New("device bootstrap key closed")

	// ErrKeyNotFound is returned by the cache for an unknown key id.
	ErrKeyNotFound = errors.New("bootstrap key not found in cache")

	// ErrCacheFull is returned when the cache cannot evict enough unpinned
	// keys to admit a new one.
	ErrCacheFull = errors.New("key cache is full and cannot evict")
)

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/bsk/device"
)

// Distribute converts a host-resident bootstrapping key into a device
// bootstrap key sharded across the given devices, in the given order.
//
// The supplied Parameters are taken as-is, never re-derived from the host
// key, so a disagreement between the two surfaces as ErrParameterMismatch
// instead of being silently masked. Per-device allocate/encode/copy runs as
// one worker per device; construction is all-or-nothing: on any failure
// every buffer acquired earlier in the same call is freed before the error
// is returned, so no partial key is ever observable.
//
// Cancelling ctx abandons the whole call (there is no partial-key
// cancellation); already-acquired buffers are rolled back the same way.
func Distribute[T Torus](ctx context.Context, rt device.Runtime, host *HostKey[T], params Parameters, deviceIDs []int) (*DeviceBootstrapKey[T], error) {
	if err := checkDeviceSet(params, deviceIDs); err != nil {
		return nil, err
	}
	if host.ElementCount() != params.ElementCount() {
		return nil, fmt.Errorf("%w: host key has %d elements, parameters require %d",
			ErrParameterMismatch, host.ElementCount(), params.ElementCount())
	}

	shards := partition(params, deviceIDs)
	coeffs := host.Coeffs()
	perInput := params.ElementsPerInput()

	// Fan out one worker per device. Results land at the worker's own index,
	// so buffer order tracks deviceIDs regardless of completion timing.
	buffers := make([]*device.Buffer, len(shards))
	errs := make([]error, len(shards))

	var wg sync.WaitGroup
	for i, shard := range shards {
		wg.Add(1)
		go func(i int, shard Shard) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}

			byteLen := shard.Elements * coeffBytes[T]()
			buf, err := device.Allocate(rt, shard.DeviceID, byteLen)
			if err != nil {
				errs[i] = fmt.Errorf("%w: shard for device %d: %v", ErrAllocationFailure, shard.DeviceID, err)
				return
			}

			lo := shard.InputOffset * perInput
			data := encodeCoeffs(coeffs[lo : lo+shard.Elements])
			if err := buf.CopyIn(data); err != nil {
				// Release this worker's buffer here; the join point below
				// only sees buffers that made it into the slice.
				_ = buf.Free()
				errs[i] = fmt.Errorf("%w: shard for device %d: %v", ErrTransferFailure, shard.DeviceID, err)
				return
			}

			buffers[i] = buf
		}(i, shard)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			_ = freeAll(buffers)
			return nil, err
		}
	}

	byDevice := make(map[int]int, len(shards))
	for i, s := range shards {
		byDevice[s.DeviceID] = i
	}

	return &DeviceBootstrapKey[T]{
		params:   params,
		buffers:  buffers,
		shards:   shards,
		byDevice: byDevice,
	}, nil
}

// checkDeviceSet validates the target device list: non-empty, distinct ids,
// and no more devices than input-LWE indices to hand out.
func checkDeviceSet(params Parameters, deviceIDs []int) error {
	if len(deviceIDs) == 0 {
		return fmt.Errorf("bsk: empty device set")
	}
	if len(deviceIDs) > params.InputLWEDimension() {
		return fmt.Errorf("bsk: %d devices for %d input-LWE indices", len(deviceIDs), params.InputLWEDimension())
	}
	seen := make(map[int]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("bsk: duplicate device id %d", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

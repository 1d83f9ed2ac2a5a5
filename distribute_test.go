// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/bsk/device"
)

// rampKey builds a deterministic non-trivial coefficient tensor.
func rampKey[T Torus](n int) *HostKey[T] {
	coeffs := make([]T, n)
	for i := range coeffs {
		coeffs[i] = T(uint64(i)*2654435761 + 12345)
	}
	return NewHostKey(coeffs)
}

func distributeRoundTrip[T Torus](t *testing.T, deviceIDs []int) {
	t.Helper()

	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 4})
	host := rampKey[T](params.ElementCount())

	key, err := Distribute(context.Background(), rt, host, params, deviceIDs)
	require.NoError(t, err)
	defer key.Close()

	got, err := key.Gather()
	require.NoError(t, err)
	require.Equal(t, host.Coeffs(), got)
}

func TestDistributeRoundTrip(t *testing.T) {
	t.Run("Width32", func(t *testing.T) { distributeRoundTrip[uint32](t, []int{0, 1}) })
	t.Run("Width64", func(t *testing.T) { distributeRoundTrip[uint64](t, []int{0, 1}) })
	t.Run("Width64ThreeDevices", func(t *testing.T) { distributeRoundTrip[uint64](t, []int{0, 1, 2}) })
	t.Run("Width64SingleDevice", func(t *testing.T) { distributeRoundTrip[uint64](t, []int{3}) })
}

func TestDistributeOrderStability(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 4})
	host := rampKey[uint64](params.ElementCount())

	key, err := Distribute(context.Background(), rt, host, params, []int{2, 0, 1})
	require.NoError(t, err)
	defer key.Close()

	require.Equal(t, []int{2, 0, 1}, key.DeviceIDs())
	for i, buf := range key.Buffers() {
		require.Equal(t, key.Shards()[i].DeviceID, buf.DeviceID())
	}
}

func TestDistributeParameterMismatch(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 2})
	host := rampKey[uint64](params.ElementCount() - 1)

	_, err := Distribute(context.Background(), rt, host, params, []int{0, 1})
	require.ErrorIs(t, err, ErrParameterMismatch)
	require.Equal(t, 0, rt.LiveAllocs())
}

func TestDistributeRollbackOnTransferFailure(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 3})
	host := rampKey[uint64](params.ElementCount())

	// Fault the transfer to the last device of a 3-device distribution.
	rt.InjectCopyFault(2, 1)

	_, err := Distribute(context.Background(), rt, host, params, []int{0, 1, 2})
	require.ErrorIs(t, err, ErrTransferFailure)

	// No device memory may remain allocated after rollback.
	require.Equal(t, 0, rt.LiveAllocs())
	for dev := 0; dev < 3; dev++ {
		require.Zero(t, rt.MemUsed(dev))
	}
}

func TestDistributeAllocationFailure(t *testing.T) {
	params := testParams(t)
	host := rampKey[uint64](params.ElementCount())

	t.Run("InvalidDevice", func(t *testing.T) {
		rt := device.NewSimRuntime(device.SimConfig{Devices: 2})
		_, err := Distribute(context.Background(), rt, host, params, []int{0, 9})
		require.ErrorIs(t, err, ErrAllocationFailure)
		require.Equal(t, 0, rt.LiveAllocs())
	})

	t.Run("OutOfMemory", func(t *testing.T) {
		rt := device.NewSimRuntime(device.SimConfig{Devices: 2, MemPerDevice: 16})
		_, err := Distribute(context.Background(), rt, host, params, []int{0, 1})
		require.ErrorIs(t, err, ErrAllocationFailure)
		require.Equal(t, 0, rt.LiveAllocs())
	})
}

func TestDistributeDeviceSetValidation(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 8})
	host := rampKey[uint64](params.ElementCount())

	cases := []struct {
		name string
		ids  []int
	}{
		{"Empty", nil},
		{"Duplicate", []int{0, 1, 0}},
		{"MoreDevicesThanInputs", []int{0, 1, 2, 3, 4}}, // n=4
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Distribute(context.Background(), rt, host, params, tc.ids)
			require.Error(t, err)
			require.Equal(t, 0, rt.LiveAllocs())
		})
	}
}

func TestDistributeCancelledContext(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 2})
	host := rampKey[uint64](params.ElementCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Distribute(ctx, rt, host, params, []int{0, 1})
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, rt.LiveAllocs())
}

func TestDistributeDoesNotMutateHostKey(t *testing.T) {
	params := testParams(t)
	rt := device.NewSimRuntime(device.SimConfig{Devices: 2})
	host := rampKey[uint32](params.ElementCount())

	before := append([]uint32(nil), host.Coeffs()...)

	key, err := Distribute(context.Background(), rt, host, params, []int{0, 1})
	require.NoError(t, err)
	defer key.Close()

	require.Equal(t, before, host.Coeffs())
}

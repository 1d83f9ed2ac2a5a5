// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/bsk/device"
)

func distributeTestKey[T Torus](t *testing.T, rt *device.SimRuntime, deviceIDs []int) *DeviceBootstrapKey[T] {
	t.Helper()
	params := testParams(t)
	key, err := Distribute(context.Background(), rt, rampKey[T](params.ElementCount()), params, deviceIDs)
	require.NoError(t, err)
	return key
}

func keyAccessorFidelity[T Torus](t *testing.T) {
	t.Helper()

	lit := ParametersLiteral{
		InputLWEDimension:       4,
		GLWEDimension:           1,
		PolynomialSize:          8,
		DecompositionLevelCount: 2,
		DecompositionBaseLog:    3,
	}
	params, err := NewParametersFromLiteral(lit)
	require.NoError(t, err)

	rt := device.NewSimRuntime(device.SimConfig{Devices: 2})
	key, err := Distribute(context.Background(), rt, rampKey[T](params.ElementCount()), params, []int{0, 1})
	require.NoError(t, err)
	defer key.Close()

	require.Equal(t, lit.InputLWEDimension, key.InputLWEDimension())
	require.Equal(t, lit.GLWEDimension, key.GLWEDimension())
	require.Equal(t, lit.PolynomialSize, key.PolynomialSize())
	require.Equal(t, lit.DecompositionLevelCount, key.DecompositionLevelCount())
	require.Equal(t, lit.DecompositionBaseLog, key.DecompositionBaseLog())
}

func TestKeyParameterFidelity(t *testing.T) {
	t.Run("Width32", func(t *testing.T) { keyAccessorFidelity[uint32](t) })
	t.Run("Width64", func(t *testing.T) { keyAccessorFidelity[uint64](t) })
}

func TestKeyWidthBits(t *testing.T) {
	rt := device.NewSimRuntime(device.SimConfig{Devices: 2})

	k32 := distributeTestKey[uint32](t, rt, []int{0, 1})
	defer k32.Close()
	k64 := distributeTestKey[uint64](t, rt, []int{0, 1})
	defer k64.Close()

	require.Equal(t, 32, k32.WidthBits())
	require.Equal(t, 64, k64.WidthBits())
}

func TestBufferFor(t *testing.T) {
	rt := device.NewSimRuntime(device.SimConfig{Devices: 4})
	key := distributeTestKey[uint64](t, rt, []int{2, 0})
	defer key.Close()

	buf, shard, err := key.BufferFor(0)
	require.NoError(t, err)
	require.Equal(t, 0, buf.DeviceID())
	require.Equal(t, 0, shard.DeviceID)
	require.Equal(t, shard.Elements*8, buf.ByteLen())
	require.NotNil(t, buf.Ptr())

	// Device 1 exists in the runtime but holds no shard of this key.
	_, _, err = key.BufferFor(1)
	require.ErrorIs(t, err, ErrDeviceNotPresent)
}

func TestKeyClose(t *testing.T) {
	rt := device.NewSimRuntime(device.SimConfig{Devices: 3})
	key := distributeTestKey[uint64](t, rt, []int{0, 1, 2})

	require.Equal(t, 3, rt.LiveAllocs())
	require.NoError(t, key.Close())
	require.Equal(t, 0, rt.LiveAllocs())

	// Close is a no-op after the first call.
	require.NoError(t, key.Close())

	_, _, err := key.BufferFor(0)
	require.ErrorIs(t, err, ErrKeyClosed)
	_, err = key.Gather()
	require.ErrorIs(t, err, ErrKeyClosed)
}

func TestShardOffsetsAddressWholeTensor(t *testing.T) {
	rt := device.NewSimRuntime(device.SimConfig{Devices: 3})
	key := distributeTestKey[uint64](t, rt, []int{0, 1, 2})
	defer key.Close()

	perInput := key.Parameters().ElementsPerInput()
	next := 0
	for _, s := range key.Shards() {
		require.Equal(t, next, s.InputOffset)
		require.Equal(t, s.InputCount*perInput, s.Elements)
		next += s.InputCount
	}
	require.Equal(t, key.InputLWEDimension(), next)
}

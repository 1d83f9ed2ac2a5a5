// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import "encoding/binary"

// Torus is the closed set of ciphertext coefficient widths. It is a
// compile-time witness: a HostKey[uint32] can only ever produce a
// DeviceBootstrapKey[uint32], so a 32-bit buffer can never reach a 64-bit
// kernel path. The width never appears as runtime data inside a key.
type Torus interface {
	uint32 | uint64
}

// coeffBytes returns the on-device byte width of one coefficient.
func coeffBytes[T Torus]() int {
	switch any(T(0)).(type) {
	case uint32:
		return 4
	default:
		return 8
	}
}

// widthBits returns the coefficient width in bits, for metadata records.
func widthBits[T Torus]() int { return coeffBytes[T]() * 8 }

// encodeCoeffs re-encodes coefficients into the canonical on-device
// representation: fixed-width little-endian integers matching the witness.
func encodeCoeffs[T Torus](src []T) []byte {
	data := make([]byte, len(src)*coeffBytes[T]())
	switch src := any(src).(type) {
	case []uint32:
		for i, c := range src {
			binary.LittleEndian.PutUint32(data[i*4:], c)
		}
	case []uint64:
		for i, c := range src {
			binary.LittleEndian.PutUint64(data[i*8:], c)
		}
	}
	return data
}

// decodeCoeffs is the inverse of encodeCoeffs. len(data) must be a multiple
// of the coefficient width.
func decodeCoeffs[T Torus](data []byte) []T {
	out := make([]T, len(data)/coeffBytes[T]())
	switch dst := any(out).(type) {
	case []uint32:
		for i := range dst {
			dst[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	case []uint64:
		for i := range dst {
			dst[i] = binary.LittleEndian.Uint64(data[i*8:])
		}
	}
	return out
}

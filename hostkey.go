// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"github.com/luxfi/lattice/v7/ring"
)

// HostKey is a host-resident bootstrapping key: the flat coefficient tensor
// in the scheme's canonical layout [n, k+1, L, k+1, N], outermost axis
// first. The distribution pipeline treats it as a read-only source and never
// mutates it; ownership stays with the caller.
type HostKey[T Torus] struct {
	coeffs []T
}

// NewHostKey wraps a caller-owned coefficient tensor. The slice is not
// copied; the caller must not mutate it while a distribution is in flight.
func NewHostKey[T Torus](coeffs []T) *HostKey[T] {
	return &HostKey[T]{coeffs: coeffs}
}

// Coeffs returns the underlying coefficient tensor. Read-only.
func (k *HostKey[T]) Coeffs() []T { return k.coeffs }

// ElementCount returns the number of coefficients in the tensor.
func (k *HostKey[T]) ElementCount() int { return len(k.coeffs) }

// HostKeyFromPolys flattens lattice ring polynomials into a host key tensor,
// in the order given. Only the first RNS level of each polynomial is taken;
// the blind-rotation keys produced for this scheme carry a single prime
// modulus. Coefficients are copied, so the polynomials may be reused.
func HostKeyFromPolys(polys []*ring.Poly) *HostKey[uint64] {
	n := 0
	for _, p := range polys {
		if p != nil && len(p.Coeffs) > 0 {
			n += len(p.Coeffs[0])
		}
	}

	coeffs := make([]uint64, 0, n)
	for _, p := range polys {
		if p == nil || len(p.Coeffs) == 0 {
			continue
		}
		coeffs = append(coeffs, p.Coeffs[0]...)
	}
	return &HostKey[uint64]{coeffs: coeffs}
}

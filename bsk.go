// Package bsk manages device-resident TFHE bootstrapping keys: the large
// encrypted key object consumed by blind-rotation kernels during
// programmable bootstrapping.
//
// A bootstrapping key is a tensor of encrypted polynomial coefficients whose
// shape is fixed by five cryptographic dimensions. This package describes
// that tensor (Parameters), partitions it across one or more accelerator
// devices along the input-LWE axis (Distribute), owns the resulting device
// memory (DeviceBootstrapKey), and exposes the per-device buffers and
// parameters to the kernel-dispatch layer. The blind-rotation math itself,
// host-side key generation and the device allocator internals are external:
// this package only guarantees the key material's layout, ownership and
// lifecycle.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package bsk

import (
	"fmt"
)

// ParametersLiteral is a user-friendly specification of the five dimensions
// defining a bootstrapping key's shape.
type ParametersLiteral struct {
	// InputLWEDimension is the dimension of the input ciphertext space
	// (one RGSW block per input coefficient).
	InputLWEDimension int
	// GLWEDimension is the dimension of the GLWE ring module of the key's
	// output ciphertexts.
	GLWEDimension int
	// PolynomialSize is the power-of-two degree of the ring polynomials.
	PolynomialSize int
	// DecompositionLevelCount is the number of gadget decomposition digits.
	DecompositionLevelCount int
	// DecompositionBaseLog is log2 of the gadget decomposition digit base.
	DecompositionBaseLog int
}

// Parameters is the immutable bundle of the five dimensions. It fully
// determines the key tensor's element count and never changes for the
// lifetime of a key.
type Parameters struct {
	inputLWEDimension       int
	glweDimension           int
	polynomialSize          int
	decompositionLevelCount int
	decompositionBaseLog    int
}

// NewParametersFromLiteral validates a literal and returns Parameters.
func NewParametersFromLiteral(lit ParametersLiteral) (Parameters, error) {
	switch {
	case lit.InputLWEDimension <= 0:
		return Parameters{}, fmt.Errorf("bsk: input LWE dimension must be positive, got %d", lit.InputLWEDimension)
	case lit.GLWEDimension <= 0:
		return Parameters{}, fmt.Errorf("bsk: GLWE dimension must be positive, got %d", lit.GLWEDimension)
	case lit.PolynomialSize <= 0 || lit.PolynomialSize&(lit.PolynomialSize-1) != 0:
		return Parameters{}, fmt.Errorf("bsk: polynomial size must be a positive power of two, got %d", lit.PolynomialSize)
	case lit.DecompositionLevelCount <= 0:
		return Parameters{}, fmt.Errorf("bsk: decomposition level count must be positive, got %d", lit.DecompositionLevelCount)
	case lit.DecompositionBaseLog <= 0:
		return Parameters{}, fmt.Errorf("bsk: decomposition base log must be positive, got %d", lit.DecompositionBaseLog)
	}

	return Parameters{
		inputLWEDimension:       lit.InputLWEDimension,
		glweDimension:           lit.GLWEDimension,
		polynomialSize:          lit.PolynomialSize,
		decompositionLevelCount: lit.DecompositionLevelCount,
		decompositionBaseLog:    lit.DecompositionBaseLog,
	}, nil
}

// InputLWEDimension returns the input ciphertext space dimension.
func (p Parameters) InputLWEDimension() int { return p.inputLWEDimension }

// GLWEDimension returns the GLWE ring module dimension.
func (p Parameters) GLWEDimension() int { return p.glweDimension }

// PolynomialSize returns the ring polynomial degree.
func (p Parameters) PolynomialSize() int { return p.polynomialSize }

// DecompositionLevelCount returns the number of gadget decomposition digits.
func (p Parameters) DecompositionLevelCount() int { return p.decompositionLevelCount }

// DecompositionBaseLog returns log2 of the gadget decomposition base.
func (p Parameters) DecompositionBaseLog() int { return p.decompositionBaseLog }

// ElementsPerInput returns the coefficient count of one input-LWE block:
// (k+1) RGSW rows x L levels x (k+1) polynomials x N coefficients. Blocks
// along the input-LWE axis are consumed independently by the blind-rotation
// loop, which is why partitioning happens on that axis.
func (p Parameters) ElementsPerInput() int {
	kp1 := p.glweDimension + 1
	return kp1 * p.decompositionLevelCount * kp1 * p.polynomialSize
}

// ElementCount returns the total coefficient count of the key tensor.
func (p Parameters) ElementCount() int {
	return p.inputLWEDimension * p.ElementsPerInput()
}

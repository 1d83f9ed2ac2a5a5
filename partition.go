// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

// Shard describes one device's contiguous slice of the key tensor. The cut
// runs along the input-LWE axis, so every shard holds whole RGSW blocks: no
// polynomial and no decomposition level is ever split across two devices,
// and each shard is independently addressable by the blind-rotation loop.
type Shard struct {
	// DeviceID is the device holding the shard.
	DeviceID int
	// InputOffset is the first input-LWE index in the shard.
	InputOffset int
	// InputCount is the number of input-LWE indices in the shard.
	InputCount int
	// Elements is InputCount times the per-input block size.
	Elements int
}

// partition splits the input-LWE axis across the given devices, in order.
// When the axis does not divide evenly, each of the first remainder devices
// takes one extra index, so shard sizes differ by at most one input unit and
// their sum always covers the whole axis.
func partition(params Parameters, deviceIDs []int) []Shard {
	n := params.InputLWEDimension()
	perInput := params.ElementsPerInput()
	count := len(deviceIDs)

	base := n / count
	rem := n % count

	shards := make([]Shard, count)
	offset := 0
	for i, id := range deviceIDs {
		inputs := base
		if i < rem {
			inputs++
		}
		shards[i] = Shard{
			DeviceID:    id,
			InputOffset: offset,
			InputCount:  inputs,
			Elements:    inputs * perInput,
		}
		offset += inputs
	}
	return shards
}

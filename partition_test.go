// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bsk

import (
	"testing"
)

func testParams(t *testing.T) Parameters {
	t.Helper()
	params, err := NewParametersFromLiteral(ParametersLiteral{
		InputLWEDimension:       4,
		GLWEDimension:           1,
		PolynomialSize:          8,
		DecompositionLevelCount: 2,
		DecompositionBaseLog:    3,
	})
	if err != nil {
		t.Fatalf("failed to create parameters: %v", err)
	}
	return params
}

func TestPartitionScenario(t *testing.T) {
	params := testParams(t)

	// n=4 across 2 devices: even split.
	shards := partition(params, []int{0, 1})
	if shards[0].InputCount != 2 || shards[1].InputCount != 2 {
		t.Errorf("2-device split = %d,%d, want 2,2", shards[0].InputCount, shards[1].InputCount)
	}

	// n=4 across 3 devices: remainder goes to the first device.
	shards = partition(params, []int{0, 1, 2})
	got := []int{shards[0].InputCount, shards[1].InputCount, shards[2].InputCount}
	want := []int{2, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("3-device split = %v, want %v", got, want)
		}
	}
}

func TestPartitionCoverage(t *testing.T) {
	cases := []struct {
		n, devices int
	}{
		{1, 1},
		{4, 2},
		{4, 3},
		{7, 3},
		{8, 8},
		{500, 3},
		{512, 8},
		{1024, 7},
	}

	for _, tc := range cases {
		lit := ParametersLiteral{
			InputLWEDimension:       tc.n,
			GLWEDimension:           1,
			PolynomialSize:          8,
			DecompositionLevelCount: 2,
			DecompositionBaseLog:    3,
		}
		params, err := NewParametersFromLiteral(lit)
		if err != nil {
			t.Fatalf("n=%d: %v", tc.n, err)
		}

		ids := make([]int, tc.devices)
		for i := range ids {
			ids[i] = i
		}
		shards := partition(params, ids)

		sum, minIn, maxIn, offset := 0, tc.n, 0, 0
		for i, s := range shards {
			if s.DeviceID != ids[i] {
				t.Errorf("n=%d/%d: shard %d on device %d, want %d", tc.n, tc.devices, i, s.DeviceID, ids[i])
			}
			if s.InputOffset != offset {
				t.Errorf("n=%d/%d: shard %d offset %d, want %d", tc.n, tc.devices, i, s.InputOffset, offset)
			}
			if s.Elements != s.InputCount*params.ElementsPerInput() {
				t.Errorf("n=%d/%d: shard %d elements %d, want %d", tc.n, tc.devices, i, s.Elements, s.InputCount*params.ElementsPerInput())
			}
			sum += s.InputCount
			offset += s.InputCount
			if s.InputCount < minIn {
				minIn = s.InputCount
			}
			if s.InputCount > maxIn {
				maxIn = s.InputCount
			}
		}

		if sum != tc.n {
			t.Errorf("n=%d/%d: shard sizes sum to %d", tc.n, tc.devices, sum)
		}
		if maxIn-minIn > 1 {
			t.Errorf("n=%d/%d: imbalance %d, want at most 1", tc.n, tc.devices, maxIn-minIn)
		}
	}
}

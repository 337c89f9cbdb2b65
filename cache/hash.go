// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"hash/fnv"
)

// pickIndex maps s onto [0, n) with FNV-1a so that a given client always
// lands on the same replica. Returns 0 if n <= 0.
func pickIndex(s string, n int) int {
	if n <= 0 {
		return 0
	}

	h := fnv.New32a()
	h.Write([]byte(s))

	//nolint:gosec // G115: Modulo ensures result fits in int range
	return int(h.Sum32() % uint32(n))
}

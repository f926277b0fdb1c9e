// internal/services/position_allocator.go
package services

import "math"

// maxSlotSearch bounds how far from the target FindFreeSlot looks.
const maxSlotSearch = 1000.0

// FindFreeSlot returns the offset nearest to target that keeps at least
// minSpacing from every occupied offset. Candidates are probed in steps of
// minSpacing/2, above (target-offset) before below (target+offset). When the
// search bound is exhausted target is returned as is, possibly overlapping.
func FindFreeSlot(target float64, occupied []float64, minSpacing float64) float64 {
	if isFree(target, occupied, minSpacing) {
		return target
	}

	step := minSpacing / 2
	if step <= 0 {
		return target
	}

	for offset := step; offset <= maxSlotSearch; offset += step {
		if above := target - offset; isFree(above, occupied, minSpacing) {
			return above
		}
		if below := target + offset; isFree(below, occupied, minSpacing) {
			return below
		}
	}
	return target
}

func isFree(candidate float64, occupied []float64, minSpacing float64) bool {
	for _, o := range occupied {
		if math.Abs(candidate-o) < minSpacing {
			return false
		}
	}
	return true
}

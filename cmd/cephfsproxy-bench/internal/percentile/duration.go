// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package percentile

import (
	"math"
	"time"
)

// DurationSlice implements sort.Interface for a slice of durations.
type DurationSlice []time.Duration

func (p DurationSlice) Len() int           { return len(p) }
func (p DurationSlice) Less(i, j int) bool { return p[i] < p[j] }
func (p DurationSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// Duration computes the pth percentile of vals via linear interpolation
// between the two closest observations, matching Excel's PERCENTIL.
//
// REQUIRES: vals is sorted.
// REQUIRES: len(vals) > 0
// REQUIRES: 0 <= p <= 100
func Duration(vals DurationSlice, p int) time.Duration {
	n := len(vals)
	rank := (float64(p) / 100) * float64(n-1)
	kFloat, d := math.Modf(rank)
	k := int(kFloat)

	switch {
	case 0 <= k && k < n-1:
		vk := float64(vals[k])
		vk1 := float64(vals[k+1])
		return time.Duration(vk + d*(vk1-vk))
	case k == n-1:
		return vals[n-1]
	default:
		panic("percentile.Duration: invalid input")
	}
}

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

package handle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScramblerRoundTrip(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	ptrs := []uint64{8, 16, 4096, 1 << 40, (1 << 56) - 8, 0}
	for _, p := range ptrs {
		scrambled, serr := s.Scramble(p)
		require.Nil(t, serr)

		back, uerr := s.Unscramble(scrambled)
		require.Nil(t, uerr)
		require.Equal(t, p, back)
	}
}

func TestScramblerRejectsMisalignedPointers(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, serr := s.Scramble(1) // not 8-byte aligned
	require.NotNil(t, serr)

	_, serr = s.Scramble(1 << 60) // top byte non-zero
	require.NotNil(t, serr)
}

func TestUnscrambleRejectsForgery(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	valid, serr := s.Scramble(8)
	require.Nil(t, serr)

	_, uerr := s.Unscramble(valid ^ 1)
	require.NotNil(t, uerr)
}

func TestModInverse(t *testing.T) {
	xs := []uint64{1, 3, 5, 0xdeadbeef | 1, 0xffffffffffffffff}
	for _, x := range xs {
		inv := modInverse64(x)
		require.Equal(t, uint64(1), x*inv)
	}
}

func TestSlotTableRoundTrip(t *testing.T) {
	st := NewSlotTable()
	type obj struct{ n int }
	o := &obj{n: 42}

	raw := st.Put(o)
	require.Zero(t, raw&alignMask)

	got := st.Get(raw)
	require.Same(t, o, got)

	st.Delete(raw)
	require.Nil(t, st.Get(raw))
}

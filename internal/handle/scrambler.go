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

// Package handle implements the reversible pointer-scrambling scheme of
// spec.md section 4.2: the daemon never lets a consumer see a real
// address, so every handle crossing the wire is a 64-bit value derived
// from a real pointer through a mask/rotate/multiply transform that only
// this process can invert.
package handle

import (
	"crypto/rand"
	"encoding/binary"
	"math/bits"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
)

// addrBits is the meaningful address width: 56 bits (top 8 bits must be
// zero), 8-byte aligned (bottom 3 bits must be zero).
const (
	addrMask   = (uint64(1) << 56) - 1
	alignMask  = uint64(7)
	parityBits = 56
)

// Scrambler holds one mask/multiply/rotate transform. Two instances
// exist per spec.md section 3: one global, shared by cross-session
// objects (credential handles); one per connection, for mount/file/
// inode/dir handles that must not be replayed across connections.
type Scrambler struct {
	mask      uint64
	mult      uint64
	multInv   uint64
	shiftSeed uint64
}

// New builds a scrambler with a fresh random state. Fields are assigned
// once at construction and never mutated afterward (spec.md section 5:
// "read-mostly after initialization; no lock").
func New() (*Scrambler, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	mask := binary.LittleEndian.Uint64(buf[0:8])
	mult := binary.LittleEndian.Uint64(buf[8:16]) | 1 // force odd: required for invertibility mod 2^64
	seed := binary.LittleEndian.Uint64(buf[16:24])

	return &Scrambler{
		mask:      mask,
		mult:      mult,
		multInv:   modInverse64(mult),
		shiftSeed: seed,
	}, nil
}

// modInverse64 returns x^-1 mod 2^64 for odd x, via Newton-Hensel
// lifting: each iteration of y = y*(2 - x*y) doubles the number of
// correct bits, starting from the trivially-correct 3-bit seed x itself
// (since x is odd, x*x == 1 mod 8).
func modInverse64(x uint64) uint64 {
	y := x
	for i := 0; i < 6; i++ {
		y = y * (2 - x*y)
	}
	return y
}

func parityByte(low56 uint64) byte {
	var p byte
	v := low56
	for i := 0; i < 7; i++ {
		p ^= byte(v)
		v >>= 8
	}
	return p
}

func shiftAmount(seed uint64, word uint64) uint {
	return uint((seed >> bits.OnesCount64(word)) & 63)
}

// Scramble derives a 64-bit wire handle from a real pointer value. A
// zero input maps to zero (null handle). Non-zero input must have its
// top 8 bits zero and bottom 3 bits zero; anything else is a programming
// error in the caller (the allocator backing cmount/inode/fh/dir objects
// is expected to guarantee this), surfaced as EFAULT.
func (s *Scrambler) Scramble(ptr uint64) (uint64, *ferrno.Error) {
	if ptr == 0 {
		return 0, nil
	}
	if ptr&^addrMask != 0 || ptr&alignMask != 0 {
		return 0, ferrno.ErrHandleMisaligned
	}

	word := (uint64(parityByte(ptr)) << parityBits) | ptr
	word ^= s.mask
	word = bits.RotateLeft64(word, int(shiftAmount(s.shiftSeed, word)))
	word *= s.mult
	return word, nil
}

// Unscramble inverts Scramble, re-checking the parity byte and alignment
// on the way back out; only a value that passes both checks is returned
// as a pointer. A zero input maps to zero.
func (s *Scrambler) Unscramble(v uint64) (uint64, *ferrno.Error) {
	if v == 0 {
		return 0, nil
	}

	word := v * s.multInv
	word = bits.RotateLeft64(word, -int(shiftAmount(s.shiftSeed, word)))
	word ^= s.mask

	ptr := word & addrMask
	parity := byte(word >> parityBits)
	if parity != parityByte(ptr) {
		return 0, ferrno.ErrHandleBadParity
	}
	if ptr&alignMask != 0 {
		return 0, ferrno.ErrHandleMisaligned
	}
	return ptr, nil
}

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

package wire

import "encoding/binary"

// NumArgs is the number of fixed, opcode-specific 8-byte slots every
// request and reply carries (spec.md section 4.1's "fixed header"),
// regardless of which opcode is in play. A slot holds a handle, an
// inode number, a mode, a flag word, an offset, or -- when the opcode
// needs a string -- the byte offset of that string within Payload.
// Uniform sizing keeps the codec opcode-agnostic; individual handlers
// interpret only the slots their opcode uses.
const NumArgs = 4

// Args is the decoded form of a frame's FixedHeader.
type Args [NumArgs]uint64

// PutArgs serializes a into the wire's little-endian FixedHeader bytes.
func PutArgs(a Args) []byte {
	buf := make([]byte, NumArgs*8)
	for i, v := range a {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	return buf
}

// GetArgs parses a FixedHeader; a short or missing header reads as all
// zeroes for the remaining slots.
func GetArgs(buf []byte) Args {
	var a Args
	for i := range a {
		off := i * 8
		if off+8 > len(buf) {
			break
		}
		a[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}
	return a
}

// PutU64 and PutU32 write fixed-width little-endian fields into a
// caller-owned slice, for handlers that pack a record of heterogeneous
// width (e.g. readdir entries) into the payload area rather than the
// fixed Args slots.
func PutU64(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst, v) }
func PutU32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }

// GetU64 and GetU32 are PutU64/PutU32's readers, for decoding the same
// heterogeneous-width records back out of a payload buffer.
func GetU64(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }
func GetU32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

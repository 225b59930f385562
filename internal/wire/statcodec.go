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

import (
	"encoding/binary"
	"time"

	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// StatLen is the fixed wire size of an encoded nativefs.Stat.
const StatLen = 96

// EncodeStat packs st into the fixed 96-byte layout shared by every
// opcode reply or request carrying an extended-stat structure, so the
// daemon and the shim marshal it identically.
func EncodeStat(st nativefs.Stat) []byte {
	buf := make([]byte, StatLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(st.Mask))
	binary.LittleEndian.PutUint64(buf[8:16], st.Ino)
	binary.LittleEndian.PutUint32(buf[16:20], st.Mode)
	binary.LittleEndian.PutUint32(buf[20:24], st.Nlink)
	binary.LittleEndian.PutUint32(buf[24:28], st.UID)
	binary.LittleEndian.PutUint32(buf[28:32], st.GID)
	binary.LittleEndian.PutUint64(buf[32:40], st.Rdev)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(st.Size))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(st.Blocks))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(st.Atime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(st.Mtime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(st.Ctime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(st.Btime.UnixNano()))
	binary.LittleEndian.PutUint64(buf[88:96], st.Version)
	return buf
}

// DecodeStat parses the first StatLen bytes of buf, per EncodeStat's
// layout.
func DecodeStat(buf []byte) nativefs.Stat {
	if len(buf) < StatLen {
		return nativefs.Stat{}
	}
	return nativefs.Stat{
		Mask:    nativefs.StatMask(binary.LittleEndian.Uint32(buf[0:4])),
		Ino:     binary.LittleEndian.Uint64(buf[8:16]),
		Mode:    binary.LittleEndian.Uint32(buf[16:20]),
		Nlink:   binary.LittleEndian.Uint32(buf[20:24]),
		UID:     binary.LittleEndian.Uint32(buf[24:28]),
		GID:     binary.LittleEndian.Uint32(buf[28:32]),
		Rdev:    binary.LittleEndian.Uint64(buf[32:40]),
		Size:    int64(binary.LittleEndian.Uint64(buf[40:48])),
		Blocks:  int64(binary.LittleEndian.Uint64(buf[48:56])),
		Atime:   time.Unix(0, int64(binary.LittleEndian.Uint64(buf[56:64]))).UTC(),
		Mtime:   time.Unix(0, int64(binary.LittleEndian.Uint64(buf[64:72]))).UTC(),
		Ctime:   time.Unix(0, int64(binary.LittleEndian.Uint64(buf[72:80]))).UTC(),
		Btime:   time.Unix(0, int64(binary.LittleEndian.Uint64(buf[80:88]))).UTC(),
		Version: binary.LittleEndian.Uint64(buf[88:96]),
	}
}

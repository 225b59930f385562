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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceph/cephfsproxyd/internal/link"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	var pb PayloadBuilder
	off := pb.PutString("dir.1/file.1")

	f := &Frame{
		OpcodeOrFlags: uint16(OpLookup),
		FixedHeader:   PutArgs(Args{uint64(off), 0, 0, 0}),
		Payload:       pb.Bytes(),
	}

	encoded := f.Encode()
	codec := NewCodec(bytes.NewReader(encoded), nil, DefaultMaxFrame)
	decoded, err := codec.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, f.OpcodeOrFlags, decoded.OpcodeOrFlags)
	require.Equal(t, f.FixedHeader, decoded.FixedHeader)
	require.Equal(t, f.Payload, decoded.Payload)
	require.Equal(t, "dir.1/file.1", GetString(decoded.Payload, int(GetArgs(decoded.FixedHeader)[0])))
}

func TestFrameTruncationDetected(t *testing.T) {
	var pb PayloadBuilder
	pb.PutString("x")
	f := &Frame{OpcodeOrFlags: uint16(OpLookup), Payload: pb.Bytes()}
	encoded := f.Encode()

	truncated := encoded[:len(encoded)-1]
	codec := NewCodec(bytes.NewReader(truncated), &link.StopFlag{}, DefaultMaxFrame)
	_, err := codec.ReadFrame()
	require.Error(t, err)
}

func TestFrameOversizeRejected(t *testing.T) {
	buf := make([]byte, prefixReadLen)
	PutArgs(Args{}) // exercise the zero-value encode path
	codec := NewCodec(bytes.NewReader(buf), nil, 4)
	// header_len below the common prefix still reads zero data_len, so
	// craft a frame whose declared data_len exceeds maxFrame instead.
	f := &Frame{OpcodeOrFlags: 0, Payload: make([]byte, 16)}
	encoded := f.Encode()
	codec = NewCodec(bytes.NewReader(encoded), nil, 4)
	_, err := codec.ReadFrame()
	require.Error(t, err)
}

func TestStatCodecRoundTrip(t *testing.T) {
	now := time.Now().UTC().Round(time.Nanosecond)
	st := nativefs.Stat{
		Mask: nativefs.AttrAll, Ino: 7, Mode: 0100644, Nlink: 1,
		UID: 1000, GID: 1000, Rdev: 0, Size: 4096, Blocks: 8,
		Atime: now, Mtime: now, Ctime: now, Btime: now, Version: 3,
	}
	buf := EncodeStat(st)
	require.Len(t, buf, StatLen)
	got := DecodeStat(buf)
	require.Equal(t, st.Ino, got.Ino)
	require.Equal(t, st.Mode, got.Mode)
	require.Equal(t, st.Size, got.Size)
	require.True(t, st.Mtime.Equal(got.Mtime))
}

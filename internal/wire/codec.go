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
	"io"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/link"
)

// DefaultMaxFrame is the receive-buffer capacity a peer's frame must fit
// under; exceeding it is rejected with ENOBUFS (spec.md section 4.1).
// original_source's proxy_buffer.c grows its buffer on demand instead of
// pre-allocating a fixed maximum -- that behavior is kept here: MaxFrame
// is the cap a growing buffer is rejected beyond, not the size eagerly
// allocated up front.
const DefaultMaxFrame = 64 << 20

// Codec reads and writes frames on one connection. It is not safe for
// concurrent use; per spec.md section 5 a connection is strictly
// synchronous, owned by one worker goroutine (daemon) or serialized by
// the session mutex (shim).
type Codec struct {
	rw       io.ReadWriter
	stop     *link.StopFlag
	maxFrame int
}

func NewCodec(rw io.ReadWriter, stop *link.StopFlag, maxFrame int) *Codec {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	return &Codec{rw: rw, stop: stop, maxFrame: maxFrame}
}

// ReadFrame reads one complete frame from the connection.
func (c *Codec) ReadFrame() (*Frame, error) {
	prefix := make([]byte, prefixReadLen)
	if err := link.ReadFull(c.rw, prefix, c.stop); err != nil {
		return nil, err
	}

	headerLen, opcodeOrFlags, result, dataLen := decodePrefix(prefix)
	if headerLen < commonPrefixLen {
		return nil, ferrno.ErrFramingTruncated
	}
	if int64(dataLen) > int64(c.maxFrame) {
		return nil, ferrno.ErrFramingOversize
	}

	fixedLen := int(headerLen) - commonPrefixLen
	rest := make([]byte, fixedLen+int(dataLen))
	if err := link.ReadFull(c.rw, rest, c.stop); err != nil {
		return nil, err
	}

	return &Frame{
		OpcodeOrFlags: opcodeOrFlags,
		Result:        result,
		FixedHeader:   rest[:fixedLen],
		Payload:       rest[fixedLen:],
	}, nil
}

// WriteFrame writes f in full or returns an error; per spec.md section
// 4.1 any write failure is terminal for the connection.
func (c *Codec) WriteFrame(f *Frame) error {
	return link.WriteFull(c.rw, f.Encode(), c.stop)
}

// WriteRequest builds and writes a request frame for opcode with the
// given fixed header and payload.
func (c *Codec) WriteRequest(op Opcode, fixedHeader []byte, payload []byte) error {
	return c.WriteFrame(&Frame{
		OpcodeOrFlags: uint16(op),
		FixedHeader:   fixedHeader,
		Payload:       payload,
	})
}

// WriteReply builds and writes a success reply: flags with no error,
// opcode-specific fixed header and payload.
func (c *Codec) WriteReply(flags ReplyFlag, fixedHeader []byte, payload []byte) error {
	return c.WriteFrame(&Frame{
		OpcodeOrFlags: uint16(flags),
		Result:        0,
		FixedHeader:   fixedHeader,
		Payload:       payload,
	})
}

// WriteError writes a bare error reply: header only, result = -errno, no
// payload, per spec.md section 7's propagation policy.
func (c *Codec) WriteError(err *ferrno.Error) error {
	return c.WriteFrame(&Frame{
		OpcodeOrFlags: uint16(ReplyFlagNone),
		Result:        err.Wire(),
	})
}

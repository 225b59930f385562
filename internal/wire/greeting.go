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
	"io"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/link"
)

// Greeting identifiers, sent big-endian (network order) so a genuine
// endianness mismatch between peers is distinguishable from a protocol
// identifier mismatch -- everything after the greeting is host order.
const (
	GreetingBinary uint32 = 0x4C424358 // "binary client": request/reply mode
	GreetingText   uint32 = 0x4C545854 // "text client": diagnostic REPL
)

// ProtocolVersion is this implementation's wire version. Appending an
// opcode bumps Minor.
const (
	ProtocolMajor uint16 = 1
	ProtocolMinor uint16 = 0
)

// SendGreeting writes the 4-byte client identifier.
func SendGreeting(w io.Writer, id uint32, stop *link.StopFlag) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return link.WriteFull(w, buf, stop)
}

// ReadGreeting reads the 4-byte client identifier.
func ReadGreeting(r io.Reader, stop *link.StopFlag) (uint32, error) {
	buf := make([]byte, 4)
	if err := link.ReadFull(r, buf, stop); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// SendVersion writes the server's {major, minor} reply, host order.
func SendVersion(w io.Writer, major, minor uint16, stop *link.StopFlag) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], major)
	binary.LittleEndian.PutUint16(buf[2:4], minor)
	return link.WriteFull(w, buf, stop)
}

// ReadVersion reads a {major, minor} reply, host order.
func ReadVersion(r io.Reader, stop *link.StopFlag) (major, minor uint16, err error) {
	buf := make([]byte, 4)
	if err = link.ReadFull(r, buf, stop); err != nil {
		return
	}
	major = binary.LittleEndian.Uint16(buf[0:2])
	minor = binary.LittleEndian.Uint16(buf[2:4])
	return
}

// NegotiateClient runs the client side of the greeting: send the binary
// identifier, read back the server's version, and reject with ENOTSUP on
// a major mismatch or a minor newer than the server's, per spec.md
// section 4.1.
func NegotiateClient(rw io.ReadWriter, stop *link.StopFlag) error {
	if err := SendGreeting(rw, GreetingBinary, stop); err != nil {
		return err
	}
	major, minor, err := ReadVersion(rw, stop)
	if err != nil {
		return err
	}
	if major != ProtocolMajor || ProtocolMinor > minor {
		return ferrno.ErrProtocolMismatch
	}
	return nil
}

// NegotiateServer runs the server side: read the client's identifier,
// and if it's the binary mode, reply with this server's version. It
// returns whether the connection is a binary (request/reply) client; a
// text-mode client is acknowledged but its diagnostic REPL is out of
// scope for this package (spec.md section 4.1).
func NegotiateServer(rw io.ReadWriter, stop *link.StopFlag) (binary_ bool, err error) {
	id, err := ReadGreeting(rw, stop)
	if err != nil {
		return false, err
	}
	if id != GreetingBinary {
		return false, nil
	}
	if err = SendVersion(rw, ProtocolMajor, ProtocolMinor, stop); err != nil {
		return false, err
	}
	return true, nil
}

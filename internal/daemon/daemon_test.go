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

package daemon

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/instancepool"
	"github.com/ceph/cephfsproxyd/internal/logbus"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
	"github.com/ceph/cephfsproxyd/internal/wire"
)

// rawClient drives one end of a pipe with the wire codec directly,
// bypassing internal/shim so these handler-level tests exercise the
// daemon alone.
type rawClient struct {
	codec *wire.Codec
}

func newTestServer(t *testing.T) (*rawClient, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	pool := instancepool.New(nativefs.NewFake, nil)
	srv, err := NewServer(pool, nil, logbus.New())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serve(serverConn, srv.stop, srv)
	}()

	require.NoError(t, wire.NegotiateClient(clientConn, nil))

	rc := &rawClient{codec: wire.NewCodec(clientConn, nil, wire.DefaultMaxFrame)}
	cleanup := func() {
		clientConn.Close()
		serverConn.Close()
		<-done
	}
	return rc, cleanup
}

func (rc *rawClient) call(op wire.Opcode, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	if err := rc.codec.WriteRequest(op, wire.PutArgs(args), payload); err != nil {
		panic(err)
	}
	reply, err := rc.codec.ReadFrame()
	if err != nil {
		panic(err)
	}
	if reply.Result < 0 {
		return wire.Args{}, reply.Payload, ferrno.FromWire(reply.Result)
	}
	return wire.GetArgs(reply.FixedHeader), reply.Payload, nil
}

func TestDaemonLookupWriteReadRoundTrip(t *testing.T) {
	rc, cleanup := newTestServer(t)
	defer cleanup()

	mountArgs, _, ferr := rc.call(wire.OpMountCreate, wire.Args{}, []byte("client.admin\x00"))
	require.Nil(t, ferr)
	mountHandle := mountArgs[0]

	rootArgs, rootPayload, ferr := rc.call(wire.OpMount, wire.Args{mountHandle}, nil)
	require.Nil(t, ferr)
	rootHandle := rootArgs[0]
	rootStat := wire.DecodeStat(rootPayload)
	require.Equal(t, nativefs.RootIno, rootStat.Ino)

	var pb wire.PayloadBuilder
	pb.PutString("greeting")
	createArgs, createPayload, ferr := rc.call(wire.OpCreate, wire.Args{rootHandle, 0644, 0}, pb.Bytes())
	require.Nil(t, ferr)
	fileHandle, inodeHandle := createArgs[0], createArgs[1]
	fileStat := wire.DecodeStat(createPayload)
	require.NotZero(t, fileStat.Ino)

	content := []byte("hello cephfsproxy")
	wArgs, _, ferr := rc.call(wire.OpWrite, wire.Args{fileHandle, 0}, content)
	require.Nil(t, ferr)
	require.Equal(t, uint64(len(content)), wArgs[0])

	rArgs, rPayload, ferr := rc.call(wire.OpRead, wire.Args{fileHandle, 0, uint64(len(content))}, nil)
	require.Nil(t, ferr)
	require.Equal(t, uint64(len(content)), rArgs[0])
	require.Equal(t, content, rPayload)

	_, _, ferr = rc.call(wire.OpClose, wire.Args{fileHandle}, nil)
	require.Nil(t, ferr)
	_, _, ferr = rc.call(wire.OpInodeRelease, wire.Args{inodeHandle}, nil)
	require.Nil(t, ferr)

	var up wire.PayloadBuilder
	up.PutString("greeting")
	_, _, ferr = rc.call(wire.OpUnlink, wire.Args{rootHandle}, up.Bytes())
	require.Nil(t, ferr)

	_, _, ferr = rc.call(wire.OpInodeRelease, wire.Args{rootHandle}, nil)
	require.Nil(t, ferr)
	_, _, ferr = rc.call(wire.OpMountRelease, wire.Args{mountHandle}, nil)
	require.Nil(t, ferr)
}

func TestDaemonMkdirRmdirRoundTrip(t *testing.T) {
	rc, cleanup := newTestServer(t)
	defer cleanup()

	mountArgs, _, ferr := rc.call(wire.OpMountCreate, wire.Args{}, []byte("client.admin\x00"))
	require.Nil(t, ferr)
	mountHandle := mountArgs[0]

	rootArgs, _, ferr := rc.call(wire.OpMount, wire.Args{mountHandle}, nil)
	require.Nil(t, ferr)
	rootHandle := rootArgs[0]

	var pb wire.PayloadBuilder
	pb.PutString("subdir")
	_, mkdirPayload, ferr := rc.call(wire.OpMkdir, wire.Args{rootHandle, 0755}, pb.Bytes())
	require.Nil(t, ferr)
	dirStat := wire.DecodeStat(mkdirPayload)
	require.Equal(t, uint32(unix.S_IFDIR), dirStat.Mode&unix.S_IFMT)

	var rp wire.PayloadBuilder
	rp.PutString("subdir")
	_, _, ferr = rc.call(wire.OpRmdir, wire.Args{rootHandle}, rp.Bytes())
	require.Nil(t, ferr)
}

// TestDaemonProtocolHandshakeSucceeds exercises the real server's
// greeting path end to end: a compatible client completes negotiation.
func TestDaemonProtocolHandshakeSucceeds(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	pool := instancepool.New(nativefs.NewFake, nil)
	srv, err := NewServer(pool, nil, logbus.New())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = serve(serverConn, srv.stop, srv)
	}()

	require.NoError(t, wire.NegotiateClient(clientConn, nil))
	clientConn.Close()
	<-done
}

// TestDaemonProtocolMismatchRejected covers spec.md section 8's
// "protocol mismatch" scenario: a peer replying with a newer major
// version than this implementation speaks is rejected locally by
// NegotiateClient, never silently accepted.
func TestDaemonProtocolMismatchRejected(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer clientConn.Close()
	defer peerConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = wire.ReadGreeting(peerConn, nil)
		_ = wire.SendVersion(peerConn, wire.ProtocolMajor+1, 0, nil)
	}()

	err := wire.NegotiateClient(clientConn, nil)
	require.Error(t, err)
	<-done
}

// TestDaemonHandleForgery covers spec.md section 8's "handle forgery"
// scenario: a client that flips one bit of a scrambled inode handle gets
// EFAULT and no payload, never a crash or a stale object.
func TestDaemonHandleForgery(t *testing.T) {
	rc, cleanup := newTestServer(t)
	defer cleanup()

	mountArgs, _, ferr := rc.call(wire.OpMountCreate, wire.Args{}, []byte("client.admin\x00"))
	require.Nil(t, ferr)
	mountHandle := mountArgs[0]

	rootArgs, _, ferr := rc.call(wire.OpMount, wire.Args{mountHandle}, nil)
	require.Nil(t, ferr)
	rootHandle := rootArgs[0]

	forged := rootHandle ^ 1
	var pb wire.PayloadBuilder
	pb.PutString("x")
	_, payload, ferr := rc.call(wire.OpLookup, wire.Args{forged}, pb.Bytes())
	require.NotNil(t, ferr)
	require.Empty(t, payload)
}

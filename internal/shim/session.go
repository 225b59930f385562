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

// Package shim is the client-side half of the wire protocol: a Session
// owns one connection to the daemon and serializes every call/reply pair
// across it (spec.md section 5: the shim side has no per-request
// concurrency of its own), and Mount layers spec.md section 3's
// inode/dentry cache and path walker on top of one mounted session.
package shim

import (
	"net"
	"sync"
	"time"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/link"
	"github.com/ceph/cephfsproxyd/internal/wire"
)

// Session is one connection to the daemon. A Session is safe for
// concurrent use: every call takes an internal mutex, mirroring
// proxy_link.c's single outstanding-request-per-connection model rather
// than pipelining.
type Session struct {
	mu       sync.Mutex
	conn     net.Conn
	codec    *wire.Codec
	poisoned bool
}

// Dial connects to the daemon's socket at path and completes the wire
// greeting. attempts/backoff retry a transient connect failure, the way
// a consumer rides out a brief daemon restart.
func Dial(path string, attempts int, backoff time.Duration) (*Session, error) {
	conn, err := link.Dial(path, attempts, backoff)
	if err != nil {
		return nil, err
	}
	return newSession(conn)
}

// newSession wraps an already-established connection, completing the
// greeting. Dial is its only caller.
func newSession(conn net.Conn) (*Session, error) {
	if err := wire.NegotiateClient(conn, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Session{
		conn:  conn,
		codec: wire.NewCodec(conn, nil, wire.DefaultMaxFrame),
	}, nil
}

// poison marks the session unusable without touching the socket again:
// spec.md section 7's connection-loss propagation policy is that every
// call after a fatal I/O error short-circuits with ENOTCONN until the
// caller recreates the session, rather than the shim silently trying to
// reconnect mid-call.
func (s *Session) poison() {
	s.poisoned = true
}

// call sends one request and returns its decoded reply. It is the only
// place that touches the codec, so every exported RPC method funnels
// through it.
func (s *Session) call(op wire.Opcode, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return wire.Args{}, nil, ferrno.ErrConnectionClosed
	}

	if err := s.codec.WriteRequest(op, wire.PutArgs(args), payload); err != nil {
		s.poison()
		return wire.Args{}, nil, ferrno.ErrConnectionClosed
	}

	reply, err := s.codec.ReadFrame()
	if err != nil {
		s.poison()
		return wire.Args{}, nil, ferrno.ErrConnectionClosed
	}

	if reply.Result < 0 {
		return wire.Args{}, nil, ferrno.FromWire(reply.Result)
	}
	return wire.GetArgs(reply.FixedHeader), reply.Payload, nil
}

// Closed reports whether the session has been poisoned by a prior I/O
// failure and needs to be replaced before further calls will succeed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// Close tears down the underlying connection. A closed session behaves
// exactly like a poisoned one: every subsequent call fails with ENOTCONN.
func (s *Session) Close() error {
	s.mu.Lock()
	s.poisoned = true
	s.mu.Unlock()
	return s.conn.Close()
}

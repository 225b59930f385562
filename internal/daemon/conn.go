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

// Package daemon is the per-connection server loop of spec.md section
// 4.5: greet the peer, dispatch inbound requests to a handler table
// indexed by opcode, and reply, over a process-wide instance pool and
// per-connection handle scrambler.
package daemon

import (
	"io"
	"net"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/handle"
	"github.com/ceph/cephfsproxyd/internal/instancepool"
	"github.com/ceph/cephfsproxyd/internal/link"
	"github.com/ceph/cephfsproxyd/internal/logbus"
	"github.com/ceph/cephfsproxyd/internal/metrics"
	"github.com/ceph/cephfsproxyd/internal/wire"
)

type connState int

const (
	stateGreeting connState = iota
	stateReady
	stateClosed
)

// mountHandleVal is what a scrambled mount handle resolves to in a
// connection's slot table.
type mountHandleVal struct {
	inst *instancepool.Instance
}

// inodeHandleVal binds an inode number to the instance it belongs to --
// an inode number alone is meaningless without knowing which native
// client session minted it.
type inodeHandleVal struct {
	inst *instancepool.Instance
	ino  uint64
}

type fileHandleVal struct {
	inst *instancepool.Instance
	fh   uint64
}

type dirHandleVal struct {
	inst *instancepool.Instance
	fh   uint64
}

type credentialVal struct {
	uid, gid uint32
}

// Conn is one accepted connection's state: owned exclusively by the
// goroutine running Serve, per spec.md section 5 ("no cross-thread
// sharing").
type Conn struct {
	codec     *wire.Codec
	stop      *link.StopFlag
	state     connState
	scrambler *handle.Scrambler // per-connection: mount/file/inode/dir handles
	slots     *handle.SlotTable // per-connection: backs scrambler above

	server *Server
}

func newConn(rw io.ReadWriter, stop *link.StopFlag, srv *Server) (*Conn, error) {
	s, err := handle.New()
	if err != nil {
		return nil, err
	}
	return &Conn{
		codec:     wire.NewCodec(rw, stop, srv.maxFrame),
		stop:      stop,
		scrambler: s,
		slots:     handle.NewSlotTable(),
		server:    srv,
	}, nil
}

// toHandle allocates a fresh slot for v and scrambles it into a wire
// handle.
func (c *Conn) toHandle(v interface{}) (uint64, *ferrno.Error) {
	raw := c.slots.Put(v)
	return c.scrambler.Scramble(raw)
}

// fromHandle resolves a wire handle back to the object it names,
// rejecting forged or stale handles with EFAULT (spec.md section 8's
// "Handle forgery" scenario).
func (c *Conn) fromHandle(wireHandle uint64) (interface{}, *ferrno.Error) {
	raw, err := c.scrambler.Unscramble(wireHandle)
	if err != nil {
		return nil, err
	}
	v := c.slots.Get(raw)
	if v == nil {
		return nil, ferrno.ErrHandleMisaligned
	}
	return v, nil
}

func (c *Conn) dropHandle(wireHandle uint64) {
	raw, err := c.scrambler.Unscramble(wireHandle)
	if err != nil {
		return
	}
	c.slots.Delete(raw)
}

func (c *Conn) mount(wireHandle uint64) (*instancepool.Instance, *ferrno.Error) {
	v, err := c.fromHandle(wireHandle)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*mountHandleVal)
	if !ok {
		return nil, ferrno.ErrHandleMisaligned
	}
	return m.inst, nil
}

func (c *Conn) inode(wireHandle uint64) (*instancepool.Instance, uint64, *ferrno.Error) {
	v, err := c.fromHandle(wireHandle)
	if err != nil {
		return nil, 0, err
	}
	n, ok := v.(*inodeHandleVal)
	if !ok {
		return nil, 0, ferrno.ErrHandleMisaligned
	}
	return n.inst, n.ino, nil
}

func (c *Conn) file(wireHandle uint64) (*instancepool.Instance, uint64, *ferrno.Error) {
	v, err := c.fromHandle(wireHandle)
	if err != nil {
		return nil, 0, err
	}
	fh, ok := v.(*fileHandleVal)
	if !ok {
		return nil, 0, ferrno.ErrHandleMisaligned
	}
	return fh.inst, fh.fh, nil
}

func (c *Conn) dir(wireHandle uint64) (*instancepool.Instance, uint64, *ferrno.Error) {
	v, err := c.fromHandle(wireHandle)
	if err != nil {
		return nil, 0, err
	}
	dh, ok := v.(*dirHandleVal)
	if !ok {
		return nil, 0, ferrno.ErrHandleMisaligned
	}
	return dh.inst, dh.fh, nil
}

// inodeHandle wraps (inst, ino) and scrambles it into a wire handle, the
// common tail end of every handler that returns a fresh inode.
func (c *Conn) inodeHandle(inst *instancepool.Instance, ino uint64) (uint64, *ferrno.Error) {
	return c.toHandle(&inodeHandleVal{inst: inst, ino: ino})
}

// serve runs one connection to completion: greeting, then READY request/
// reply pairs until a read or write error transitions to CLOSED.
func serve(rw io.ReadWriter, stop *link.StopFlag, srv *Server) error {
	c, err := newConn(rw, stop, srv)
	if err != nil {
		return err
	}
	c.state = stateGreeting

	binaryMode, negErr := wire.NegotiateServer(rw, stop)
	if negErr != nil {
		c.state = stateClosed
		return negErr
	}
	if !binaryMode {
		// A text-mode diagnostic client: out of scope beyond the
		// greeting handshake itself.
		c.state = stateClosed
		return nil
	}
	c.state = stateReady
	if srv.Log != nil {
		srv.Log.Infof("daemon: negotiated protocol version %d.%d", wire.ProtocolMajor, wire.ProtocolMinor)
	}

	for c.state == stateReady {
		req, err := c.codec.ReadFrame()
		if err != nil {
			c.state = stateClosed
			return err
		}

		op := wire.Opcode(req.OpcodeOrFlags)
		if !op.InRange() {
			if werr := c.codec.WriteError(ferrno.ErrOpcodeOutOfRange); werr != nil {
				c.state = stateClosed
				return werr
			}
			continue
		}

		h := handlerTable[op]
		if h == nil {
			if werr := c.codec.WriteError(ferrno.ErrOpcodeUnhandled); werr != nil {
				c.state = stateClosed
				return werr
			}
			continue
		}

		if m := c.server.Metrics; m != nil {
			m.RequestsTotal.WithLabelValues(op.String()).Inc()
		}

		replyArgs, replyPayload, ferr := h(c, wire.GetArgs(req.FixedHeader), req.Payload)
		if ferr != nil {
			if m := c.server.Metrics; m != nil {
				m.RequestErrors.WithLabelValues(op.String()).Inc()
			}
			if werr := c.codec.WriteError(ferr); werr != nil {
				c.state = stateClosed
				return werr
			}
			continue
		}
		if werr := c.codec.WriteReply(wire.ReplyFlagNone, wire.PutArgs(replyArgs), replyPayload); werr != nil {
			c.state = stateClosed
			return werr
		}
	}
	return nil
}

// Server accepts connections on a listening socket and serves each on
// its own goroutine -- one worker per connection, no pool reuse, per
// spec.md section 5's scheduling model.
type Server struct {
	Pool        *instancepool.Pool
	Snapshotter *instancepool.Snapshotter
	Log         *logbus.Bus
	Metrics     *metrics.Registry
	maxFrame    int
	creds       *credentials

	listener net.Listener
	stop     *link.StopFlag
}

func NewServer(pool *instancepool.Pool, snap *instancepool.Snapshotter, log *logbus.Bus) (*Server, error) {
	creds, err := newCredentials()
	if err != nil {
		return nil, err
	}
	return &Server{
		Pool:        pool,
		Snapshotter: snap,
		Log:         log,
		maxFrame:    wire.DefaultMaxFrame,
		creds:       creds,
		stop:        &link.StopFlag{},
	}, nil
}

// credScrambled mints a wire handle for a freshly authenticated
// credential, scrambled with the process-wide scrambler rather than the
// calling connection's.
func (s *Server) credScrambled(v *credentialVal) (uint64, *ferrno.Error) {
	return s.creds.put(v)
}

// credDrop releases a credential handle.
func (s *Server) credDrop(wireHandle uint64) {
	s.creds.drop(wireHandle)
}

// Listen binds the daemon's socket.
func (s *Server) Listen(path string) error {
	l, err := link.Listen(path)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Serve accepts connections until Shutdown is called; each connection
// is served on its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stop.Stopped() {
				return nil
			}
			return err
		}
		if s.Metrics != nil {
			s.Metrics.Connections.Inc()
		}
		go func() {
			defer conn.Close()
			if s.Metrics != nil {
				defer s.Metrics.Connections.Dec()
			}
			if err := serve(conn, s.stop, s); err != nil && s.Log != nil {
				s.Log.Debugf("daemon: connection closed: %v", err)
			}
		}()
	}
}

// Shutdown raises the stop flag and closes the listening socket,
// unblocking Serve's Accept loop.
func (s *Server) Shutdown() error {
	s.stop.Stop()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

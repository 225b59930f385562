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

package shim

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/daemon"
	"github.com/ceph/cephfsproxyd/internal/instancepool"
	"github.com/ceph/cephfsproxyd/internal/logbus"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// newTestSession spins up a real daemon.Server listening on a Unix
// socket under t.TempDir() and returns a Session dialed against it.
func newTestSession(t *testing.T) (*Session, func()) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "proxy.sock")

	pool := instancepool.New(nativefs.NewFake, nil)
	srv, err := daemon.NewServer(pool, nil, logbus.New())
	require.NoError(t, err)
	require.NoError(t, srv.Listen(sockPath))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve()
	}()

	sess, err := Dial(sockPath, 20, 10*time.Millisecond)
	require.NoError(t, err)

	cleanup := func() {
		sess.Close()
		srv.Shutdown()
		<-done
	}
	return sess, cleanup
}

func TestMountLookupChdirRoundTrip(t *testing.T) {
	sess, cleanup := newTestSession(t)
	defer cleanup()

	m, ferr := NewMount(sess, "client.admin")
	require.Nil(t, ferr)

	_, ferr = m.MountFS()
	require.Nil(t, ferr)

	fh, _, _, ferr := sess.Create(InodeHandle(m.Root().Handle), "file.txt", 0644, 0)
	require.Nil(t, ferr)
	require.Nil(t, sess.CloseFile(fh))

	dirH, _, ferr := sess.Mkdir(InodeHandle(m.Root().Handle), "subdir", 0755)
	require.Nil(t, ferr)
	require.NotZero(t, dirH)

	child, ferr := m.Lookup(m.Root(), "file.txt")
	require.Nil(t, ferr)
	require.NotZero(t, child.Stat.Ino)
	require.Nil(t, m.Put(child))

	// A second lookup of the same name must be served from the dentry
	// cache, not a fresh RPC -- verified indirectly: it returns the same
	// cached Inode pointer.
	again, ferr := m.Lookup(m.Root(), "file.txt")
	require.Nil(t, ferr)
	require.Same(t, child, again)
	require.Nil(t, m.Put(again))

	require.Nil(t, m.Chdir("subdir"))
	require.Equal(t, uint32(unix.S_IFDIR), m.Cwd().Stat.Mode&unix.S_IFMT)
	require.NotEqual(t, m.Root().Stat.Ino, m.Cwd().Stat.Ino)

	require.Nil(t, m.Unmount())
}

func TestMountResolveDescendingPath(t *testing.T) {
	sess, cleanup := newTestSession(t)
	defer cleanup()

	m, ferr := NewMount(sess, "client.admin")
	require.Nil(t, ferr)
	_, ferr = m.MountFS()
	require.Nil(t, ferr)

	_, _, ferr = m.sess.Mkdir(InodeHandle(m.Root().Handle), "a", 0755)
	require.Nil(t, ferr)
	aH, _, ferr := sess.Lookup(InodeHandle(m.Root().Handle), "a")
	require.Nil(t, ferr)
	_, _, ferr = sess.Mkdir(aH, "b", 0755)
	require.Nil(t, ferr)

	n, ferr := m.Resolve("a/b")
	require.Nil(t, ferr)
	require.Equal(t, uint32(unix.S_IFDIR), n.Stat.Mode&unix.S_IFMT)
	require.Nil(t, m.Put(n))

	require.Nil(t, m.Unmount())
}

func TestSessionRenameMovesRealNames(t *testing.T) {
	sess, cleanup := newTestSession(t)
	defer cleanup()

	m, ferr := NewMount(sess, "client.admin")
	require.Nil(t, ferr)
	_, ferr = m.MountFS()
	require.Nil(t, ferr)

	root := InodeHandle(m.Root().Handle)
	fh, _, _, ferr := sess.Create(root, "original.txt", 0644, 0)
	require.Nil(t, ferr)
	require.Nil(t, sess.CloseFile(fh))

	destH, _, ferr := sess.Mkdir(root, "destdir", 0755)
	require.Nil(t, ferr)

	require.Nil(t, sess.Rename(root, destH, "original.txt", "renamed.txt"))

	// The old name must be gone and the new name must resolve under the
	// destination directory -- distinguishing this from the bug where
	// every string decoded as "", which made old/new both collide on "".
	_, _, ferr = sess.Lookup(root, "original.txt")
	require.NotNil(t, ferr)
	require.Equal(t, unix.ENOENT, ferr.Errno)

	moved, _, ferr := sess.Lookup(destH, "renamed.txt")
	require.Nil(t, ferr)
	require.NotZero(t, moved)

	require.Nil(t, m.Unmount())
}

func TestSessionPoisonsAfterConnectionLoss(t *testing.T) {
	sess, cleanup := newTestSession(t)
	defer cleanup()

	require.False(t, sess.Closed())
	require.NoError(t, sess.conn.Close())

	_, _, ferr := sess.Version()
	require.NotNil(t, ferr)
	require.True(t, sess.Closed())

	// Every subsequent call must short-circuit with ENOTCONN without
	// touching the (already-dead) socket again.
	_, _, ferr = sess.Version()
	require.NotNil(t, ferr)
	require.Equal(t, unix.ENOTCONN, ferr.Errno)
}

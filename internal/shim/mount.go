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
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/icache"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// Mount is a shim-side mounted session: a Session plus spec.md section
// 3's inode/dentry cache and cached root/cwd pointers. Path-taking
// methods consult the dentry cache before making a round trip, falling
// back to the daemon's single-round-trip walk opcode only when a
// component resolves to a symlink or ".." appears, since the shim has
// no local index of "what is my parent" to walk upward through.
type Mount struct {
	sess     *Session
	handle   MountHandle
	inodes   *icache.Table
	dentries *icache.DentryTable

	// handles mirrors, ino by ino, the wire handle icache.Table's Inode
	// already carries -- kept separately because Table's dropper
	// callback only receives the inode number, after the table has
	// already unlinked the Inode record itself, so Handle is no longer
	// reachable through the table at that point.
	handles map[uint64]uint64

	root *icache.Inode
	cwd  *icache.Inode
}

// mountDropper is icache.Dropper bound to one Mount.
type mountDropper struct {
	m *Mount
}

func (d mountDropper) PutRef(ino uint64) error {
	h, ok := d.m.handles[ino]
	if !ok {
		return nil
	}
	delete(d.m.handles, ino)
	if ferr := d.m.sess.InodeRelease(InodeHandle(h)); ferr != nil {
		return ferr
	}
	return nil
}

// NewMount creates a fresh pre-mount instance on sess and returns a
// Mount wrapping it. Callers still drive ConfReadFile/ConfGet/ConfSet/
// Init/SelectFilesystem against it before calling MountFS.
func NewMount(sess *Session, id string) (*Mount, *ferrno.Error) {
	h, ferr := sess.MountCreate(id)
	if ferr != nil {
		return nil, ferr
	}
	m := &Mount{sess: sess, handle: h, handles: make(map[uint64]uint64)}
	m.inodes = icache.NewTable(mountDropper{m})
	m.dentries = icache.NewDentryTable()
	return m, nil
}

// Handle is the opaque pre-mount instance handle, for the handful of
// calls (ConfReadFile, ConfGet, ConfSet, Init, SelectFilesystem) that
// still take it directly.
func (m *Mount) Handle() MountHandle { return m.handle }

func (m *Mount) ConfReadFile(path string) *ferrno.Error     { return m.sess.ConfReadFile(m.handle, path) }
func (m *Mount) ConfGet(key string) (string, *ferrno.Error) { return m.sess.ConfGet(m.handle, key) }
func (m *Mount) ConfSet(key, value string) *ferrno.Error {
	return m.sess.ConfSet(m.handle, key, value)
}
func (m *Mount) Init() *ferrno.Error { return m.sess.Init(m.handle) }
func (m *Mount) SelectFilesystem(name string) *ferrno.Error {
	return m.sess.SelectFilesystem(m.handle, name)
}

// bind records a freshly seen (ino, handle, stat) triple in both the
// inode table and the local handle index, returning the owned
// reference the caller now holds.
func (m *Mount) bind(handle InodeHandle, st nativefs.Stat) *icache.Inode {
	if _, ok := m.handles[st.Ino]; !ok {
		m.handles[st.Ino] = uint64(handle)
	}
	return m.inodes.Lookup(st.Ino, uint64(handle), st)
}

// MountFS runs the mount(2)-equivalent call and populates root and cwd,
// both starting at the filesystem root.
func (m *Mount) MountFS() (nativefs.Stat, *ferrno.Error) {
	h, st, ferr := m.sess.Mount(m.handle)
	if ferr != nil {
		return nativefs.Stat{}, ferr
	}
	m.root = m.bind(h, st)
	m.cwd = m.root
	m.inodes.Ref(m.cwd)
	return st, nil
}

// Unmount releases the root/cwd references and tears down the instance.
// root and cwd are two independent reference slots even when they name
// the same inode (MountFS acquires one reference per slot up front), so
// both are always released here regardless of whether Chdir ever moved
// cwd away from root.
func (m *Mount) Unmount() *ferrno.Error {
	if m.cwd != nil {
		m.Put(m.cwd)
	}
	if m.root != nil {
		m.Put(m.root)
	}
	if ferr := m.sess.Unmount(m.handle); ferr != nil {
		return ferr
	}
	return m.sess.MountRelease(m.handle)
}

func (m *Mount) Statfs() (nativefs.StatfsResult, *ferrno.Error) { return m.sess.Statfs(m.handle) }

// Root returns the cached root inode, without taking a new reference.
func (m *Mount) Root() *icache.Inode { return m.root }

// Cwd returns the cached current-working-directory inode, without
// taking a new reference.
func (m *Mount) Cwd() *icache.Inode { return m.cwd }

// Put drops one reference on n.
func (m *Mount) Put(n *icache.Inode) *ferrno.Error { return m.inodes.Put(n) }

// Lookup resolves one path component under parent, consulting the
// dentry cache before making an RPC and binding a fresh dentry on a
// cache miss. The returned Inode carries a reference the caller owns.
func (m *Mount) Lookup(parent *icache.Inode, name string) (*icache.Inode, *ferrno.Error) {
	if name == "." {
		m.inodes.Ref(parent)
		return parent, nil
	}
	if d := m.dentries.Lookup(parent.Stat.Ino, name); d != nil {
		m.inodes.Ref(d.Child)
		return d.Child, nil
	}

	h, st, ferr := m.sess.Lookup(InodeHandle(parent.Handle), name)
	if ferr != nil {
		return nil, ferr
	}
	child := m.bind(h, st)
	m.dentries.Bind(m.inodes, parent, child, name)
	return child, nil
}

// Walk resolves path in one daemon round trip via the walk opcode,
// starting from startIno (the mount's root or cwd).
func (m *Mount) Walk(startIno uint64, path string) (*icache.Inode, *ferrno.Error) {
	h, st, ferr := m.sess.Walk(m.handle, startIno, path)
	if ferr != nil {
		return nil, ferr
	}
	return m.bind(h, st), nil
}

// Resolve walks path (absolute or relative to cwd), using the shim-side
// dentry cache for every plain descending component and falling back to
// a single daemon-side Walk call the moment ".." appears or an
// intermediate component turns out to be a symlink -- cases the shim
// has no local state to resolve on its own. The returned Inode carries
// a reference the caller owns.
func (m *Mount) Resolve(path string) (*icache.Inode, *ferrno.Error) {
	start := m.cwd
	if strings.HasPrefix(path, "/") {
		start = m.root
	}

	parts := splitPath(path)
	for _, p := range parts {
		if p == ".." {
			return m.Walk(start.Stat.Ino, path)
		}
	}

	cur := start
	owned := false // whether cur is a reference this call acquired (vs. the caller's own)
	for i, name := range parts {
		child, ferr := m.Lookup(cur, name)
		if ferr != nil {
			if owned {
				m.Put(cur)
			}
			return nil, ferr
		}
		if owned {
			m.Put(cur)
		}
		cur, owned = child, true

		if i != len(parts)-1 && cur.Stat.Mode&unix.S_IFMT == unix.S_IFLNK {
			if owned {
				m.Put(cur)
			}
			return m.Walk(start.Stat.Ino, path)
		}
	}

	if !owned {
		// Empty path: "resolve" is just a fresh reference on start.
		m.inodes.Ref(start)
		return start, nil
	}
	return cur, nil
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, p := range raw {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

// Chdir asks the daemon to change this mount's working directory and
// updates the cached cwd pointer to match: the old cwd slot's reference
// is dropped (root's own separate reference, if cwd aliased root, is
// untouched) and the new one acquires its own.
func (m *Mount) Chdir(path string) *ferrno.Error {
	h, st, ferr := m.sess.Chdir(m.handle, path)
	if ferr != nil {
		return ferr
	}
	old := m.cwd
	m.cwd = m.bind(h, st)
	if old != nil {
		m.Put(old)
	}
	return nil
}

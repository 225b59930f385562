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

// Package icache is the shim-side inode and dentry cache of spec.md
// section 3: a refcounted inode table keyed by inode number, a parent+name
// dentry table, and the path walker that resolves a string path to an
// inode through repeated single-component lookups with symlink and ".."
// handling.
//
// Per spec.md section 5, a single consumer process is assumed
// single-threaded against this cache; a multi-threaded consumer must
// supply its own external guard. No lock is introduced here to match
// that documented limitation.
package icache

import (
	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// Dropper is the daemon-side per-inode reference drop, called when an
// Inode's refcount reaches zero.
type Dropper interface {
	PutRef(ino uint64) error
}

// Inode is the shim-side cached record of spec.md section 3: a merged
// extended-stat, the opaque daemon-side handle, and a reference count.
type Inode struct {
	Stat    nativefs.Stat
	Handle  uint64
	refs    int
	dropper Dropper
}

// Table is the inode table: a hash table keyed by inode number. The
// table holds no reference of its own: an entry stays in it while
// callers hold references (taken via Lookup/Ref, dropped via Put).
type Table struct {
	byIno   map[uint64]*Inode
	dropper Dropper
}

func NewTable(dropper Dropper) *Table {
	return &Table{byIno: make(map[uint64]*Inode), dropper: dropper}
}

// Lookup returns the cached inode for ino, creating it from st if this
// is the first sighting (spec.md section 3: "created on first lookup
// that returns a fresh inode number"). The returned inode's refcount is
// incremented by one, representing the reference callers are expected
// to Put when done.
func (t *Table) Lookup(ino uint64, handle uint64, st nativefs.Stat) *Inode {
	if existing, ok := t.byIno[ino]; ok {
		existing.Stat.Merge(st)
		existing.refs++
		return existing
	}
	st.Ino = ino
	st.Mask |= nativefs.AttrIno
	node := &Inode{Stat: st, Handle: handle, refs: 1, dropper: t.dropper}
	t.byIno[ino] = node
	return node
}

// Ref takes an additional reference on an inode already in the table,
// for callers handing out a second handle to the same inode (e.g. a
// dentry binding).
func (t *Table) Ref(n *Inode) {
	n.refs++
}

// Put drops one reference; at zero the record is unlinked from the
// table and the daemon is told to drop its own reference, per spec.md
// section 3.
func (t *Table) Put(n *Inode) *ferrno.Error {
	n.refs--
	if n.refs > 0 {
		return nil
	}
	ino := n.Stat.Ino
	delete(t.byIno, ino)
	if n.dropper == nil {
		return nil
	}
	if err := n.dropper.PutRef(ino); err != nil {
		return ferrno.As(err)
	}
	return nil
}

// Refs reports the current reference count, for tests asserting
// conservation.
func (n *Inode) Refs() int { return n.refs }

// Len reports the number of distinct inodes currently cached, for tests
// asserting that a balanced lookup/put sequence leaves the table empty.
func (t *Table) Len() int { return len(t.byIno) }

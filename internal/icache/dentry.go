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

package icache

import (
	"github.com/twmb/murmur3"
)

// Dentry is the shim-side (parent, name) -> child binding of spec.md
// section 3. It owns one strong reference to each of Parent and Child;
// destruction must drop both.
type Dentry struct {
	Parent *Inode
	Child  *Inode
	Name   string

	key uint64
}

// DentryTable maps (parent, name) to a Dentry, keyed by
// hash(parent_identity) xor hash(name) per spec.md section 3. Parent
// identity is the parent inode's number, a stable per-mount-session
// value; collisions across keys are broken by a same-key chain check.
type DentryTable struct {
	byKey map[uint64][]*Dentry
}

func NewDentryTable() *DentryTable {
	return &DentryTable{byKey: make(map[uint64][]*Dentry)}
}

func dentryKey(parentIno uint64, name string) uint64 {
	return parentIno ^ murmur3.Sum64([]byte(name))
}

// Lookup returns the existing dentry for (parentIno, name), if any.
func (t *DentryTable) Lookup(parentIno uint64, name string) *Dentry {
	key := dentryKey(parentIno, name)
	for _, d := range t.byKey[key] {
		if d.Parent.Stat.Ino == parentIno && d.Name == name {
			return d
		}
	}
	return nil
}

// Bind creates or re-binds the dentry for (parent, name) to child,
// taking fresh references on parent and child via inodeTable. If a
// dentry already existed for this (parent, name), its previous child
// reference is dropped first (spec.md section 3: "re-binding a name to
// a new inode drops the old child reference and takes a new one").
func (t *DentryTable) Bind(inodeTable *Table, parent, child *Inode, name string) *Dentry {
	key := dentryKey(parent.Stat.Ino, name)
	if existing := t.Lookup(parent.Stat.Ino, name); existing != nil {
		if existing.Child == child {
			return existing
		}
		inodeTable.Put(existing.Child)
		existing.Child = child
		inodeTable.Ref(child)
		return existing
	}

	inodeTable.Ref(parent)
	inodeTable.Ref(child)
	d := &Dentry{Parent: parent, Child: child, Name: name, key: key}
	t.byKey[key] = append(t.byKey[key], d)
	return d
}

// Unbind destroys d, dropping both its parent and child references.
func (t *DentryTable) Unbind(inodeTable *Table, d *Dentry) {
	chain := t.byKey[d.key]
	for i, c := range chain {
		if c == d {
			t.byKey[d.key] = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(t.byKey[d.key]) == 0 {
		delete(t.byKey, d.key)
	}
	inodeTable.Put(d.Parent)
	inodeTable.Put(d.Child)
}

// Len reports the number of live dentries, for tests.
func (t *DentryTable) Len() int {
	n := 0
	for _, chain := range t.byKey {
		n += len(chain)
	}
	return n
}

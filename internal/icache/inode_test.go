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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

type countingDropper struct{ drops int }

func (d *countingDropper) PutRef(ino uint64) error {
	d.drops++
	return nil
}

func TestInodeReferenceConservation(t *testing.T) {
	dropper := &countingDropper{}
	table := NewTable(dropper)

	n := table.Lookup(42, 100, nativefs.Stat{Mask: nativefs.AttrMode, Mode: 0644})
	table.Ref(n)
	table.Ref(n)
	require.Equal(t, 3, n.Refs())
	require.Equal(t, 1, table.Len())

	require.Nil(t, table.Put(n))
	require.Nil(t, table.Put(n))
	require.Equal(t, 0, dropper.drops)

	require.Nil(t, table.Put(n))
	require.Equal(t, 1, dropper.drops)
	require.Equal(t, 0, table.Len())
}

func TestInodeAttributeMergeMonotonic(t *testing.T) {
	table := NewTable(nil)
	n := table.Lookup(1, 1, nativefs.Stat{Mask: nativefs.AttrMode, Mode: 0644})
	require.Equal(t, nativefs.AttrMode|nativefs.AttrIno, n.Stat.Mask&(nativefs.AttrMode|nativefs.AttrIno))

	before := n.Stat.Mask
	// A subsequent lookup carrying additional mask bits only ever grows
	// the valid set; it never drops previously-known fields.
	n2 := table.Lookup(1, 1, nativefs.Stat{Mask: nativefs.AttrSize, Size: 4096})
	require.Same(t, n, n2)
	require.Equal(t, before|nativefs.AttrSize, n.Stat.Mask)
	require.Equal(t, uint32(0644), n.Stat.Mode)
	require.Equal(t, int64(4096), n.Stat.Size)
}

func TestDentryRebindDropsOldChild(t *testing.T) {
	dropper := &countingDropper{}
	inodes := NewTable(dropper)
	dentries := NewDentryTable()

	parent := inodes.Lookup(1, 1, nativefs.Stat{})
	childA := inodes.Lookup(2, 2, nativefs.Stat{})
	childB := inodes.Lookup(3, 3, nativefs.Stat{})

	dentries.Bind(inodes, parent, childA, "name.1")
	require.Equal(t, 2, childA.Refs()) // Lookup's own ref + Bind's ref

	// Re-binding "name.1" to childB must drop the dentry's reference on
	// childA, leaving only the caller's original Lookup reference.
	dentries.Bind(inodes, parent, childB, "name.1")
	require.Equal(t, 1, childA.Refs())
	require.Equal(t, 0, dropper.drops) // childA's caller ref still outstanding

	require.Nil(t, inodes.Put(childA)) // drop the caller's own remaining ref
	require.Equal(t, 1, dropper.drops)

	dentries.Unbind(inodes, dentries.Lookup(1, "name.1"))
	require.Equal(t, 0, dentries.Len())
}

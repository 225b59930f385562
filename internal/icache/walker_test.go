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
	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

func mustMount(t *testing.T) (*nativefs.Fake, nativefs.Stat) {
	t.Helper()
	c, err := nativefs.NewFake("id")
	require.NoError(t, err)
	f := c.(*nativefs.Fake)
	root, err := f.Mount()
	require.NoError(t, err)
	return f, root
}

func TestWalkerResolvesNestedPath(t *testing.T) {
	f, root := mustMount(t)

	_, err := f.Mkdir(root.Ino, "dir.1", 0755)
	require.NoError(t, err)
	dirStat, err := f.Lookup(root.Ino, "dir.1")
	require.NoError(t, err)
	_, fileStat, err := f.Create(dirStat.Ino, "file.1", 0644, 0)
	require.NoError(t, err)

	w := NewWalker(f)
	res, werr := w.Walk(root.Ino, root, "dir.1/file.1", true)
	require.Nil(t, werr)
	require.Equal(t, fileStat.Ino, res.Stat.Ino)
	require.Equal(t, "/dir.1/file.1", res.ResolvedPath)
}

func TestWalkerDotAndDotDot(t *testing.T) {
	f, root := mustMount(t)
	_, err := f.Mkdir(root.Ino, "dir.1", 0755)
	require.NoError(t, err)

	w := NewWalker(f)
	res, werr := w.Walk(root.Ino, root, "./dir.1/../dir.1", false)
	require.Nil(t, werr)
	dirStat, err := f.Lookup(root.Ino, "dir.1")
	require.NoError(t, err)
	require.Equal(t, dirStat.Ino, res.Stat.Ino)
}

func TestWalkerDotDotAtRootStaysAtRoot(t *testing.T) {
	f, root := mustMount(t)
	w := NewWalker(f)
	res, werr := w.Walk(root.Ino, root, "..", false)
	require.Nil(t, werr)
	require.Equal(t, root.Ino, res.Stat.Ino)
}

func TestWalkerFollowsRelativeSymlink(t *testing.T) {
	f, root := mustMount(t)
	_, err := f.Mkdir(root.Ino, "dir.1", 0755)
	require.NoError(t, err)
	dirStat, err := f.Lookup(root.Ino, "dir.1")
	require.NoError(t, err)
	_, _, err = f.Create(dirStat.Ino, "file.1", 0644, 0)
	require.NoError(t, err)
	_, err = f.Symlink(root.Ino, "link.1", "dir.1")
	require.NoError(t, err)

	w := NewWalker(f)
	res, werr := w.Walk(root.Ino, root, "link.1/file.1", false)
	require.Nil(t, werr)
	fileStat, err := f.Lookup(dirStat.Ino, "file.1")
	require.NoError(t, err)
	require.Equal(t, fileStat.Ino, res.Stat.Ino)
}

func TestWalkerSymlinkLoopIsELOOP(t *testing.T) {
	f, root := mustMount(t)
	_, err := f.Symlink(root.Ino, "a", "b")
	require.NoError(t, err)
	_, err = f.Symlink(root.Ino, "b", "a")
	require.NoError(t, err)

	w := NewWalker(f)
	_, werr := w.Walk(root.Ino, root, "a/x", false)
	require.NotNil(t, werr)
	require.Equal(t, ferrno.ErrTooManySymlinks.Errno, werr.Errno)
}

func TestWalkerTerminalSymlinkNotFollowed(t *testing.T) {
	f, root := mustMount(t)
	_, err := f.Symlink(root.Ino, "link.1", "nonexistent-target")
	require.NoError(t, err)

	w := NewWalker(f)
	res, werr := w.Walk(root.Ino, root, "link.1", false)
	require.Nil(t, werr)
	require.Equal(t, uint32(unix.S_IFLNK), res.Stat.Mode&unix.S_IFMT)
}

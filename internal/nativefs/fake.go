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

package nativefs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
)

const RootIno uint64 = 1

type fakeNode struct {
	stat     Stat
	refs     int
	target   string // symlink target
	children map[string]uint64
	data     []byte
}

// Fake is a self-contained in-memory filesystem standing in for the
// native client library. It exists so the instance pool, handlers and
// shim can be exercised end to end without a real distributed
// filesystem, the way the teacher's fake GCS bucket stands in for live
// Cloud Storage.
type Fake struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	nodes     map[uint64]*fakeNode
	nextIno   uint64
	nextFh    uint64
	handles   map[uint64]*fakeHandle
	dirCursor map[uint64]int
	mounted   bool
	config    map[string]string
	fsName    string
}

type fakeHandle struct {
	ino   uint64
	flags int
}

// NewFake is a Factory: it ignores id (the fake has no external config
// identity) and returns a fresh, unmounted client with just a root
// directory.
func NewFake(_ string) (Client, error) {
	f := &Fake{
		clock:     timeutil.RealClock(),
		nodes:     make(map[uint64]*fakeNode),
		nextIno:   RootIno + 1,
		nextFh:    1,
		handles:   make(map[uint64]*fakeHandle),
		dirCursor: make(map[uint64]int),
		config:    make(map[string]string),
	}
	now := f.clock.Now()
	f.nodes[RootIno] = &fakeNode{
		stat: Stat{
			Mask: AttrAll, Ino: RootIno, Mode: unix.S_IFDIR | 0755, Nlink: 2,
			Atime: now, Mtime: now, Ctime: now, Btime: now,
		},
		children: make(map[string]uint64),
		refs:     1,
	}
	return f, nil
}

func (f *Fake) ConfReadFile(canonicalPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config["__conf_file__"] = canonicalPath
	return nil
}

func (f *Fake) ConfGet(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config[key], nil
}

func (f *Fake) ConfSet(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = value
	return nil
}

func (f *Fake) SelectFilesystem(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fsName = name
	return nil
}

func (f *Fake) Init() error { return nil }

func (f *Fake) Mount() (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = true
	root := f.nodes[RootIno]
	root.refs++
	return root.stat, nil
}

func (f *Fake) Unmount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted = false
	return nil
}

func (f *Fake) Statfs() (StatfsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return StatfsResult{BlockSize: 4096, Blocks: 1 << 20, BlocksFree: 1 << 19, Files: uint64(len(f.nodes)), FilesFree: 1 << 20}, nil
}

func (f *Fake) lookupLocked(parentIno uint64, name string) (*fakeNode, uint64, *ferrno.Error) {
	parent, ok := f.nodes[parentIno]
	if !ok {
		return nil, 0, ferrno.New(unix.ENOENT, "no such parent inode")
	}
	ino, ok := parent.children[name]
	if !ok {
		return nil, 0, ferrno.New(unix.ENOENT, fmt.Sprintf("no such entry %q", name))
	}
	return f.nodes[ino], ino, nil
}

func (f *Fake) Lookup(parentIno uint64, name string) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, err := f.lookupLocked(parentIno, name)
	if err != nil {
		return Stat{}, err
	}
	n.refs++
	return n.stat, nil
}

func (f *Fake) LookupInode(ino uint64) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such inode")
	}
	n.refs++
	return n.stat, nil
}

func (f *Fake) Getattr(ino uint64, want StatMask) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such inode")
	}
	return n.stat, nil
}

func (f *Fake) Setattr(ino uint64, attrs Stat, mask StatMask) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such inode")
	}
	attrs.Mask = mask
	n.stat.Merge(attrs)
	n.stat.Ctime = f.clock.Now()
	return n.stat, nil
}

func (f *Fake) PutRef(ino uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such inode")
	}
	n.refs--
	if n.refs <= 0 && n.stat.Nlink == 0 {
		delete(f.nodes, ino)
	}
	return nil
}

func (f *Fake) Opendir(ino uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[ino]; !ok {
		return 0, ferrno.New(unix.ENOENT, "no such inode")
	}
	fh := f.nextFh
	f.nextFh++
	f.handles[fh] = &fakeHandle{ino: ino}
	f.dirCursor[fh] = 0
	return fh, nil
}

func (f *Fake) Readdir(fh uint64, offset int) ([]DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[fh]
	if !ok {
		return nil, ferrno.New(unix.EBADF, "no such directory handle")
	}
	n := f.nodes[h.ino]
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []DirEntry
	for i := offset; i < len(names); i++ {
		child := f.nodes[n.children[names[i]]]
		entries = append(entries, DirEntry{Name: names[i], Ino: child.stat.Ino, Mode: child.stat.Mode})
	}
	f.dirCursor[fh] = len(names)
	return entries, nil
}

func (f *Fake) Rewinddir(fh uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handles[fh]; !ok {
		return ferrno.New(unix.EBADF, "no such directory handle")
	}
	f.dirCursor[fh] = 0
	return nil
}

func (f *Fake) Releasedir(fh uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, fh)
	delete(f.dirCursor, fh)
	return nil
}

func (f *Fake) Open(ino uint64, flags int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[ino]; !ok {
		return 0, ferrno.New(unix.ENOENT, "no such inode")
	}
	fh := f.nextFh
	f.nextFh++
	f.handles[fh] = &fakeHandle{ino: ino, flags: flags}
	return fh, nil
}

func (f *Fake) Create(parentIno uint64, name string, mode uint32, flags int) (uint64, Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.nodes[parentIno]
	if !ok {
		return 0, Stat{}, ferrno.New(unix.ENOENT, "no such parent inode")
	}
	if _, exists := parent.children[name]; exists {
		return 0, Stat{}, ferrno.New(unix.EEXIST, "entry exists")
	}

	ino := f.nextIno
	f.nextIno++
	now := f.clock.Now()
	n := &fakeNode{
		stat: Stat{
			Mask: AttrAll, Ino: ino, Mode: unix.S_IFREG | mode, Nlink: 1,
			Atime: now, Mtime: now, Ctime: now, Btime: now,
		},
		refs: 1,
	}
	f.nodes[ino] = n
	parent.children[name] = ino

	fh := f.nextFh
	f.nextFh++
	f.handles[fh] = &fakeHandle{ino: ino, flags: flags}
	return fh, n.stat, nil
}

func (f *Fake) Close(fh uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, fh)
	return nil
}

func (f *Fake) Read(fh uint64, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[fh]
	if !ok {
		return 0, ferrno.New(unix.EBADF, "no such file handle")
	}
	n := f.nodes[h.ino]
	if offset >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[offset:]), nil
}

func (f *Fake) Write(fh uint64, buf []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[fh]
	if !ok {
		return 0, ferrno.New(unix.EBADF, "no such file handle")
	}
	n := f.nodes[h.ino]
	end := offset + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], buf)
	n.stat.Size = int64(len(n.data))
	n.stat.Mtime = f.clock.Now()
	return len(buf), nil
}

func (f *Fake) Lseek(fh uint64, offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[fh]
	if !ok {
		return 0, ferrno.New(unix.EBADF, "no such file handle")
	}
	n := f.nodes[h.ino]
	switch whence {
	case 0:
		return offset, nil
	case 1:
		return offset, nil
	case 2:
		return int64(len(n.data)) + offset, nil
	default:
		return 0, ferrno.New(unix.EINVAL, "bad whence")
	}
}

func (f *Fake) Fallocate(fh uint64, mode int, offset, length int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[fh]
	if !ok {
		return ferrno.New(unix.EBADF, "no such file handle")
	}
	n := f.nodes[h.ino]
	end := offset + length
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	n.stat.Size = int64(len(n.data))
	return nil
}

func (f *Fake) Fsync(fh uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handles[fh]; !ok {
		return ferrno.New(unix.EBADF, "no such file handle")
	}
	return nil
}

func (f *Fake) Link(ino uint64, newParentIno uint64, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such inode")
	}
	parent, ok := f.nodes[newParentIno]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such parent inode")
	}
	if _, exists := parent.children[newName]; exists {
		return ferrno.New(unix.EEXIST, "entry exists")
	}
	parent.children[newName] = ino
	n.stat.Nlink++
	return nil
}

func (f *Fake) Unlink(parentIno uint64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, err := f.lookupLocked(parentIno, name)
	if err != nil {
		return err
	}
	delete(f.nodes[parentIno].children, name)
	n.stat.Nlink--
	if n.stat.Nlink == 0 && n.refs <= 0 {
		delete(f.nodes, n.stat.Ino)
	}
	return nil
}

func (f *Fake) Rename(oldParentIno uint64, oldName string, newParentIno uint64, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldParent, ok := f.nodes[oldParentIno]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such parent inode")
	}
	ino, ok := oldParent.children[oldName]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such entry")
	}
	newParent, ok := f.nodes[newParentIno]
	if !ok {
		return ferrno.New(unix.ENOENT, "no such destination parent")
	}
	delete(oldParent.children, oldName)
	newParent.children[newName] = ino
	return nil
}

func (f *Fake) Mkdir(parentIno uint64, name string, mode uint32) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.nodes[parentIno]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such parent inode")
	}
	if _, exists := parent.children[name]; exists {
		return Stat{}, ferrno.New(unix.EEXIST, "entry exists")
	}
	ino := f.nextIno
	f.nextIno++
	now := f.clock.Now()
	n := &fakeNode{
		stat: Stat{
			Mask: AttrAll, Ino: ino, Mode: unix.S_IFDIR | mode, Nlink: 2,
			Atime: now, Mtime: now, Ctime: now, Btime: now,
		},
		children: make(map[string]uint64),
		refs:     1,
	}
	f.nodes[ino] = n
	parent.children[name] = ino
	return n.stat, nil
}

func (f *Fake) Rmdir(parentIno uint64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _, err := f.lookupLocked(parentIno, name)
	if err != nil {
		return err
	}
	if len(n.children) != 0 {
		return ferrno.New(unix.ENOTEMPTY, "directory not empty")
	}
	delete(f.nodes[parentIno].children, name)
	delete(f.nodes, n.stat.Ino)
	return nil
}

func (f *Fake) Mknod(parentIno uint64, name string, mode uint32, rdev uint64) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.nodes[parentIno]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such parent inode")
	}
	ino := f.nextIno
	f.nextIno++
	now := f.clock.Now()
	n := &fakeNode{stat: Stat{Mask: AttrAll, Ino: ino, Mode: mode, Rdev: rdev, Nlink: 1, Atime: now, Mtime: now, Ctime: now, Btime: now}, refs: 1}
	f.nodes[ino] = n
	parent.children[name] = ino
	return n.stat, nil
}

func (f *Fake) Symlink(parentIno uint64, name, target string) (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, ok := f.nodes[parentIno]
	if !ok {
		return Stat{}, ferrno.New(unix.ENOENT, "no such parent inode")
	}
	if _, exists := parent.children[name]; exists {
		return Stat{}, ferrno.New(unix.EEXIST, "entry exists")
	}
	ino := f.nextIno
	f.nextIno++
	now := f.clock.Now()
	n := &fakeNode{
		stat:   Stat{Mask: AttrAll, Ino: ino, Mode: unix.S_IFLNK | 0777, Nlink: 1, Size: int64(len(target)), Atime: now, Mtime: now, Ctime: now, Btime: now},
		target: target,
		refs:   1,
	}
	f.nodes[ino] = n
	parent.children[name] = ino
	return n.stat, nil
}

func (f *Fake) Readlink(ino uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[ino]
	if !ok {
		return "", ferrno.New(unix.ENOENT, "no such inode")
	}
	if n.target == "" {
		return "", ferrno.New(unix.EINVAL, "not a symlink")
	}
	return n.target, nil
}

func (f *Fake) Getxattr(ino uint64, name string) ([]byte, error) {
	return nil, ferrno.New(unix.ENODATA, "no such attribute")
}

func (f *Fake) Setxattr(ino uint64, name string, value []byte, flags int) error {
	return nil
}

func (f *Fake) Listxattr(ino uint64) ([]string, error) {
	return nil, nil
}

func (f *Fake) Removexattr(ino uint64, name string) error {
	return ferrno.New(unix.ENODATA, "no such attribute")
}

var _ Client = (*Fake)(nil)

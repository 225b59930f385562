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

// Package nativefs declares the interface to the native filesystem
// client library that spec.md section 1 places out of scope: lookup,
// create, open, read, write, getattr, readlink, mount, unmount, statfs,
// xattr, and a per-inode reference drop. The daemon's instance pool and
// opcode handlers are written against this interface; Fake is a
// self-contained in-memory implementation used by tests and by the
// bundled demo client, standing in for the real client library the way
// gcs.Bucket's fake implementation stands in for live Cloud Storage in
// the teacher's test suite.
package nativefs

import (
	"time"
)

// StatMask is the bitset of valid fields on a Stat, mirroring the
// extended-stat mask of spec.md section 3.
type StatMask uint32

const (
	AttrMode StatMask = 1 << iota
	AttrNlink
	AttrUID
	AttrGID
	AttrRdev
	AttrSize
	AttrBlocks
	AttrAtime
	AttrMtime
	AttrCtime
	AttrBtime
	AttrVersion
	AttrIno

	AttrAll = AttrMode | AttrNlink | AttrUID | AttrGID | AttrRdev | AttrSize |
		AttrBlocks | AttrAtime | AttrMtime | AttrCtime | AttrBtime | AttrVersion | AttrIno
)

// Stat is the cached extended-stat structure of spec.md section 3.
type Stat struct {
	Mask    StatMask
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blocks  int64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Btime   time.Time
	Version uint64
}

// Merge OR's mask into st.Mask and overwrites only the fields whose bit
// is set in other.Mask, implementing the "merged, never replaced
// wholesale" attribute coherence rule of spec.md section 3.
func (st *Stat) Merge(other Stat) {
	if other.Mask&AttrMode != 0 {
		st.Mode = other.Mode
	}
	if other.Mask&AttrNlink != 0 {
		st.Nlink = other.Nlink
	}
	if other.Mask&AttrUID != 0 {
		st.UID = other.UID
	}
	if other.Mask&AttrGID != 0 {
		st.GID = other.GID
	}
	if other.Mask&AttrRdev != 0 {
		st.Rdev = other.Rdev
	}
	if other.Mask&AttrSize != 0 {
		st.Size = other.Size
	}
	if other.Mask&AttrBlocks != 0 {
		st.Blocks = other.Blocks
	}
	if other.Mask&AttrAtime != 0 {
		st.Atime = other.Atime
	}
	if other.Mask&AttrMtime != 0 {
		st.Mtime = other.Mtime
	}
	if other.Mask&AttrCtime != 0 {
		st.Ctime = other.Ctime
	}
	if other.Mask&AttrBtime != 0 {
		st.Btime = other.Btime
	}
	if other.Mask&AttrVersion != 0 {
		st.Version = other.Version
	}
	if other.Mask&AttrIno != 0 {
		st.Ino = other.Ino
	}
	st.Mask |= other.Mask
}

// DirEntry is one entry returned by Readdir.
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32
}

// StatfsResult mirrors the handful of fields statfs(2) callers actually
// read.
type StatfsResult struct {
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
}

// Client is the native filesystem client library's API surface, as far
// as this proxy calls into it. Everything through SelectFilesystem is
// legal only pre-mount; everything from Mount on assumes (or performs)
// mount.
type Client interface {
	// Pre-mount configuration calls. internal/instancepool appends
	// ConfReadFile, ConfGet, ConfSet and SelectFilesystem to the
	// instance's change log once the call here succeeds; Init is not
	// recorded.
	ConfReadFile(canonicalPath string) error
	ConfGet(key string) (string, error)
	ConfSet(key, value string) error
	SelectFilesystem(name string) error
	Init() error

	Mount() (root Stat, err error)
	Unmount() error
	Statfs() (StatfsResult, error)

	Lookup(parentIno uint64, name string) (Stat, error)
	LookupInode(ino uint64) (Stat, error)
	Getattr(ino uint64, want StatMask) (Stat, error)
	Setattr(ino uint64, attrs Stat, mask StatMask) (Stat, error)
	PutRef(ino uint64) error // the native per-inode reference drop

	Opendir(ino uint64) (handle uint64, err error)
	Readdir(handle uint64, offset int) ([]DirEntry, error)
	Rewinddir(handle uint64) error
	Releasedir(handle uint64) error

	Open(ino uint64, flags int) (handle uint64, err error)
	Create(parentIno uint64, name string, mode uint32, flags int) (handle uint64, st Stat, err error)
	Close(handle uint64) error
	Read(handle uint64, buf []byte, offset int64) (int, error)
	Write(handle uint64, buf []byte, offset int64) (int, error)
	Lseek(handle uint64, offset int64, whence int) (int64, error)
	Fallocate(handle uint64, mode int, offset, length int64) error
	Fsync(handle uint64) error

	Link(ino uint64, newParentIno uint64, newName string) error
	Unlink(parentIno uint64, name string) error
	Rename(oldParentIno uint64, oldName string, newParentIno uint64, newName string) error
	Mkdir(parentIno uint64, name string, mode uint32) (Stat, error)
	Rmdir(parentIno uint64, name string) error
	Mknod(parentIno uint64, name string, mode uint32, rdev uint64) (Stat, error)
	Symlink(parentIno uint64, name, target string) (Stat, error)
	Readlink(ino uint64) (string, error)

	Getxattr(ino uint64, name string) ([]byte, error)
	Setxattr(ino uint64, name string, value []byte, flags int) error
	Listxattr(ino uint64) ([]string, error)
	Removexattr(ino uint64, name string) error
}

// Factory constructs a fresh, unmounted Client for instance pool id id,
// mirroring the native library's create(id) entry point.
type Factory func(id string) (Client, error)

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
	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
	"github.com/ceph/cephfsproxyd/internal/wire"
)

// Each method below is a thin marshal/unmarshal wrapper around one
// opcode, mirroring the corresponding internal/daemon handler's wire
// conventions exactly so the two sides agree without either importing
// the other.

// Version reads the daemon's negotiated protocol version pair. Useful
// after connecting without going through NegotiateClient's own check,
// e.g. for diagnostics.
func (s *Session) Version() (major, minor uint16, ferr *ferrno.Error) {
	args, _, ferr := s.call(wire.OpVersion, wire.Args{}, nil)
	if ferr != nil {
		return 0, 0, ferr
	}
	return uint16(args[0]), uint16(args[1]), nil
}

// CredHandle is an opaque credential handle minted by the daemon.
type CredHandle uint64

func (s *Session) CredNew(uid, gid uint32) (CredHandle, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpCredNew, wire.Args{uint64(uid), uint64(gid)}, nil)
	if ferr != nil {
		return 0, ferr
	}
	return CredHandle(args[0]), nil
}

func (s *Session) CredDestroy(h CredHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpCredDestroy, wire.Args{uint64(h)}, nil)
	return ferr
}

// MountHandle is an opaque pre-mount instance handle.
type MountHandle uint64

func (s *Session) MountCreate(id string) (MountHandle, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(id)
	args, _, ferr := s.call(wire.OpMountCreate, wire.Args{}, pb.Bytes())
	if ferr != nil {
		return 0, ferr
	}
	return MountHandle(args[0]), nil
}

func (s *Session) MountRelease(h MountHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpMountRelease, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) ConfReadFile(h MountHandle, path string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(path)
	_, _, ferr := s.call(wire.OpConfReadFile, wire.Args{uint64(h)}, pb.Bytes())
	return ferr
}

func (s *Session) ConfGet(h MountHandle, key string) (string, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(key)
	_, payload, ferr := s.call(wire.OpConfGet, wire.Args{uint64(h)}, pb.Bytes())
	if ferr != nil {
		return "", ferr
	}
	return wire.GetString(payload, wire.SoleStringOffset), nil
}

func (s *Session) ConfSet(h MountHandle, key, value string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(key)
	off := pb.PutString(value)
	_, _, ferr := s.call(wire.OpConfSet, wire.Args{uint64(h), uint64(off)}, pb.Bytes())
	return ferr
}

func (s *Session) Init(h MountHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpInit, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) SelectFilesystem(h MountHandle, name string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	_, _, ferr := s.call(wire.OpSelectFilesystem, wire.Args{uint64(h)}, pb.Bytes())
	return ferr
}

// InodeHandle is an opaque per-inode handle scoped to one connection.
type InodeHandle uint64

func (s *Session) Mount(h MountHandle) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpMount, wire.Args{uint64(h)}, nil)
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Unmount(h MountHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpUnmount, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) Statfs(h MountHandle) (nativefs.StatfsResult, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpStatfs, wire.Args{uint64(h)}, nil)
	if ferr != nil {
		return nativefs.StatfsResult{}, ferr
	}
	return nativefs.StatfsResult{
		BlockSize:  uint32(args[0]),
		Blocks:     args[1],
		BlocksFree: args[2],
		Files:      args[3],
	}, nil
}

func (s *Session) RootLookup(h MountHandle) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpRootLookup, wire.Args{uint64(h)}, nil)
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Lookup(parent InodeHandle, name string) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	args, payload, ferr := s.call(wire.OpLookup, wire.Args{uint64(parent)}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) LookupInode(h MountHandle, ino uint64) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpLookupInode, wire.Args{uint64(h), ino}, nil)
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

// Walk resolves path in one round trip starting from startIno (zero
// meaning the mount's root), with the whole walk done daemon-side, for
// callers that would rather not walk component by component over the
// wire.
func (s *Session) Walk(h MountHandle, startIno uint64, path string) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(path)
	args, payload, ferr := s.call(wire.OpWalk, wire.Args{uint64(h), startIno}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) InodeRelease(h InodeHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpInodeRelease, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) Chdir(h MountHandle, path string) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(path)
	args, payload, ferr := s.call(wire.OpChdir, wire.Args{uint64(h)}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Getcwd(h MountHandle) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpGetcwd, wire.Args{uint64(h)}, nil)
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

// DirHandle is an opaque open-directory handle.
type DirHandle uint64

func (s *Session) Opendir(ino InodeHandle) (DirHandle, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpOpendir, wire.Args{uint64(ino)}, nil)
	if ferr != nil {
		return 0, ferr
	}
	return DirHandle(args[0]), nil
}

// Readdir decodes the fixed 12-byte-record + NUL-string-name stream the
// daemon's hReaddir produces.
func (s *Session) Readdir(h DirHandle, offset int) ([]nativefs.DirEntry, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpReaddir, wire.Args{uint64(h), uint64(offset)}, nil)
	if ferr != nil {
		return nil, ferr
	}
	count := int(args[0])
	entries := make([]nativefs.DirEntry, 0, count)
	pos := wire.SoleStringOffset // hReaddir's PayloadBuilder pads offset 0 before the first record
	for i := 0; i < count; i++ {
		if pos+12 > len(payload) {
			break
		}
		ino := wire.GetU64(payload[pos : pos+8])
		mode := wire.GetU32(payload[pos+8 : pos+12])
		pos += 12
		name := wire.GetString(payload, pos)
		pos += len(name) + 1
		entries = append(entries, nativefs.DirEntry{Name: name, Ino: ino, Mode: mode})
	}
	return entries, nil
}

func (s *Session) Rewinddir(h DirHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpRewinddir, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) Releasedir(h DirHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpReleasedir, wire.Args{uint64(h)}, nil)
	return ferr
}

// FileHandle is an opaque open-file handle.
type FileHandle uint64

func (s *Session) Open(ino InodeHandle, flags int) (FileHandle, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpOpen, wire.Args{uint64(ino), uint64(flags)}, nil)
	if ferr != nil {
		return 0, ferr
	}
	return FileHandle(args[0]), nil
}

func (s *Session) Create(parent InodeHandle, name string, mode uint32, flags int) (FileHandle, InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	args, payload, ferr := s.call(wire.OpCreate, wire.Args{uint64(parent), uint64(mode), uint64(flags)}, pb.Bytes())
	if ferr != nil {
		return 0, 0, nativefs.Stat{}, ferr
	}
	return FileHandle(args[0]), InodeHandle(args[1]), wire.DecodeStat(payload), nil
}

// CloseFile is the file-close RPC (named to avoid colliding with
// Session.Close, which tears down the connection itself).
func (s *Session) CloseFile(h FileHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpClose, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) Read(h FileHandle, offset int64, size int) ([]byte, *ferrno.Error) {
	_, payload, ferr := s.call(wire.OpRead, wire.Args{uint64(h), uint64(offset), uint64(size)}, nil)
	if ferr != nil {
		return nil, ferr
	}
	return payload, nil
}

func (s *Session) Write(h FileHandle, offset int64, buf []byte) (int, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpWrite, wire.Args{uint64(h), uint64(offset)}, buf)
	if ferr != nil {
		return 0, ferr
	}
	return int(args[0]), nil
}

func (s *Session) Lseek(h FileHandle, offset int64, whence int) (int64, *ferrno.Error) {
	args, _, ferr := s.call(wire.OpLseek, wire.Args{uint64(h), uint64(offset), uint64(whence)}, nil)
	if ferr != nil {
		return 0, ferr
	}
	return int64(args[0]), nil
}

func (s *Session) Fallocate(h FileHandle, mode int, offset, length int64) *ferrno.Error {
	_, _, ferr := s.call(wire.OpFallocate, wire.Args{uint64(h), uint64(mode), uint64(offset), uint64(length)}, nil)
	return ferr
}

func (s *Session) Fsync(h FileHandle) *ferrno.Error {
	_, _, ferr := s.call(wire.OpFsync, wire.Args{uint64(h)}, nil)
	return ferr
}

func (s *Session) Link(ino, newParent InodeHandle, newName string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(newName)
	_, _, ferr := s.call(wire.OpLink, wire.Args{uint64(ino), uint64(newParent)}, pb.Bytes())
	return ferr
}

func (s *Session) Unlink(parent InodeHandle, name string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	_, _, ferr := s.call(wire.OpUnlink, wire.Args{uint64(parent)}, pb.Bytes())
	return ferr
}

func (s *Session) Rename(oldParent, newParent InodeHandle, oldName, newName string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(oldName)
	off := pb.PutString(newName)
	_, _, ferr := s.call(wire.OpRename, wire.Args{uint64(oldParent), uint64(newParent), uint64(off)}, pb.Bytes())
	return ferr
}

func (s *Session) Mkdir(parent InodeHandle, name string, mode uint32) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	args, payload, ferr := s.call(wire.OpMkdir, wire.Args{uint64(parent), uint64(mode)}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Rmdir(parent InodeHandle, name string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	_, _, ferr := s.call(wire.OpRmdir, wire.Args{uint64(parent)}, pb.Bytes())
	return ferr
}

func (s *Session) Mknod(parent InodeHandle, name string, mode uint32, rdev uint64) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	args, payload, ferr := s.call(wire.OpMknod, wire.Args{uint64(parent), uint64(mode), rdev}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Symlink(parent InodeHandle, name, target string) (InodeHandle, nativefs.Stat, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	off := pb.PutString(target)
	args, payload, ferr := s.call(wire.OpSymlink, wire.Args{uint64(parent), uint64(off)}, pb.Bytes())
	if ferr != nil {
		return 0, nativefs.Stat{}, ferr
	}
	return InodeHandle(args[0]), wire.DecodeStat(payload), nil
}

func (s *Session) Readlink(ino InodeHandle) (string, *ferrno.Error) {
	_, payload, ferr := s.call(wire.OpReadlink, wire.Args{uint64(ino)}, nil)
	if ferr != nil {
		return "", ferr
	}
	return wire.GetString(payload, wire.SoleStringOffset), nil
}

func (s *Session) Getattr(ino InodeHandle, want nativefs.StatMask) (nativefs.Stat, *ferrno.Error) {
	_, payload, ferr := s.call(wire.OpGetattr, wire.Args{uint64(ino), uint64(want)}, nil)
	if ferr != nil {
		return nativefs.Stat{}, ferr
	}
	return wire.DecodeStat(payload), nil
}

func (s *Session) Setattr(ino InodeHandle, attrs nativefs.Stat) (nativefs.Stat, *ferrno.Error) {
	_, payload, ferr := s.call(wire.OpSetattr, wire.Args{uint64(ino)}, wire.EncodeStat(attrs))
	if ferr != nil {
		return nativefs.Stat{}, ferr
	}
	return wire.DecodeStat(payload), nil
}

func (s *Session) Getxattr(ino InodeHandle, name string) ([]byte, *ferrno.Error) {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	_, payload, ferr := s.call(wire.OpGetxattr, wire.Args{uint64(ino)}, pb.Bytes())
	if ferr != nil {
		return nil, ferr
	}
	return payload, nil
}

func (s *Session) Setxattr(ino InodeHandle, name string, value []byte, flags int) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	off := pb.PutBytes(value)
	_, _, ferr := s.call(wire.OpSetxattr, wire.Args{uint64(ino), uint64(off), uint64(flags)}, pb.Bytes())
	return ferr
}

func (s *Session) Listxattr(ino InodeHandle) ([]string, *ferrno.Error) {
	args, payload, ferr := s.call(wire.OpListxattr, wire.Args{uint64(ino)}, nil)
	if ferr != nil {
		return nil, ferr
	}
	count := int(args[0])
	names := make([]string, 0, count)
	pos := wire.SoleStringOffset // hListxattr's PayloadBuilder pads offset 0 before the first name
	for i := 0; i < count; i++ {
		name := wire.GetString(payload, pos)
		pos += len(name) + 1
		names = append(names, name)
	}
	return names, nil
}

func (s *Session) Removexattr(ino InodeHandle, name string) *ferrno.Error {
	var pb wire.PayloadBuilder
	pb.PutString(name)
	_, _, ferr := s.call(wire.OpRemovexattr, wire.Args{uint64(ino)}, pb.Bytes())
	return ferr
}


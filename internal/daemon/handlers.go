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

package daemon

import (
	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/icache"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
	"github.com/ceph/cephfsproxyd/internal/wire"
)

// handlerFunc is the shape every opcode's handler takes: decoded fixed
// args and payload in, either a success reply (args, payload) or an
// error out. Matches spec.md section 9's "error-carrying returns" note
// -- negative result implies empty payload, enforced by the caller in
// conn.go rather than by each handler.
type handlerFunc func(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error)

// handlerTable is the single dispatch table spec.md section 9 asks for:
// a nil slot is a registered-but-unimplemented opcode (EOPNOTSUPP); an
// out-of-range opcode never reaches this table (ENOSYS, handled in
// conn.go before the lookup).
var handlerTable = [wire.NumOpcodes]handlerFunc{
	wire.OpVersion:          hVersion,
	wire.OpCredNew:          hCredNew,
	wire.OpCredDestroy:      hCredDestroy,
	wire.OpMountCreate:      hMountCreate,
	wire.OpMountRelease:     hMountRelease,
	wire.OpConfReadFile:     hConfReadFile,
	wire.OpConfGet:          hConfGet,
	wire.OpConfSet:          hConfSet,
	wire.OpInit:             hInit,
	wire.OpSelectFilesystem: hSelectFilesystem,
	wire.OpMount:            hMount,
	wire.OpUnmount:          hUnmount,
	wire.OpStatfs:           hStatfs,
	wire.OpRootLookup:       hRootLookup,
	wire.OpLookup:           hLookup,
	wire.OpLookupInode:      hLookupInode,
	wire.OpWalk:             hWalk,
	wire.OpInodeRelease:     hInodeRelease,
	wire.OpChdir:            hChdir,
	wire.OpGetcwd:           hGetcwd,
	wire.OpOpendir:          hOpendir,
	wire.OpReaddir:          hReaddir,
	wire.OpRewinddir:        hRewinddir,
	wire.OpReleasedir:       hReleasedir,
	wire.OpOpen:             hOpen,
	wire.OpCreate:           hCreate,
	wire.OpClose:            hClose,
	wire.OpRead:             hRead,
	wire.OpWrite:            hWrite,
	wire.OpLseek:            hLseek,
	wire.OpFallocate:        hFallocate,
	wire.OpFsync:            hFsync,
	wire.OpLink:             hLink,
	wire.OpUnlink:           hUnlink,
	wire.OpRename:           hRename,
	wire.OpMkdir:            hMkdir,
	wire.OpRmdir:            hRmdir,
	wire.OpMknod:            hMknod,
	wire.OpSymlink:          hSymlink,
	wire.OpReadlink:         hReadlink,
	wire.OpGetattr:          hGetattr,
	wire.OpSetattr:          hSetattr,
	wire.OpGetxattr:         hGetxattr,
	wire.OpSetxattr:         hSetxattr,
	wire.OpListxattr:        hListxattr,
	wire.OpRemovexattr:      hRemovexattr,
}

func hVersion(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	return wire.Args{uint64(wire.ProtocolMajor), uint64(wire.ProtocolMinor)}, nil, nil
}

func hCredNew(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	cred := &credentialVal{uid: uint32(args[0]), gid: uint32(args[1])}
	h, err := c.server.credScrambled(cred)
	if err != nil {
		return wire.Args{}, nil, err
	}
	return wire.Args{h}, nil, nil
}

func hCredDestroy(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	c.server.credDrop(args[0])
	return wire.Args{}, nil, nil
}

func hMountCreate(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	id := wire.GetString(payload, wire.SoleStringOffset)
	inst, err := c.server.Pool.Create(id)
	if err != nil {
		return wire.Args{}, nil, err
	}
	h, herr := c.toHandle(&mountHandleVal{inst: inst})
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, nil, nil
}

func hMountRelease(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if err := c.server.Pool.Unmount(inst); err != nil && err != ferrno.ErrNotMounted {
		return wire.Args{}, nil, err
	}
	c.dropHandle(args[0])
	return wire.Args{}, nil, nil
}

func hConfReadFile(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	path := wire.GetString(payload, wire.SoleStringOffset)

	canonical := path
	if c.server.Snapshotter != nil {
		name, serr := c.server.Snapshotter.Snapshot(path)
		if serr != nil {
			return wire.Args{}, nil, serr
		}
		canonical = name
	}
	if err := inst.ConfReadFile(canonical); err != nil {
		return wire.Args{}, nil, err
	}
	return wire.Args{}, nil, nil
}

func hConfGet(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	key := wire.GetString(payload, wire.SoleStringOffset)
	value, verr := inst.ConfGet(key)
	if verr != nil {
		return wire.Args{}, nil, verr
	}
	var pb wire.PayloadBuilder
	pb.PutString(value)
	return wire.Args{}, pb.Bytes(), nil
}

func hConfSet(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	key := wire.GetString(payload, wire.SoleStringOffset)
	value := wire.GetString(payload, int(args[1]))
	if serr := inst.ConfSet(key, value); serr != nil {
		return wire.Args{}, nil, serr
	}
	return wire.Args{}, nil, nil
}

func hInit(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if ierr := inst.Init(); ierr != nil {
		return wire.Args{}, nil, ierr
	}
	return wire.Args{}, nil, nil
}

func hSelectFilesystem(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	if serr := inst.SelectFilesystem(name); serr != nil {
		return wire.Args{}, nil, serr
	}
	return wire.Args{}, nil, nil
}

func hMount(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	root, merr := c.server.Pool.Mount(inst)
	if merr != nil {
		return wire.Args{}, nil, merr
	}
	h, herr := c.inodeHandle(inst, root.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(root), nil
}

func hUnmount(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if uerr := c.server.Pool.Unmount(inst); uerr != nil {
		return wire.Args{}, nil, uerr
	}
	return wire.Args{}, nil, nil
}

func hStatfs(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	sf, serr := inst.Native().Statfs()
	if serr != nil {
		return wire.Args{}, nil, ferrno.As(serr)
	}
	return wire.Args{
		uint64(sf.BlockSize), sf.Blocks, sf.BlocksFree, sf.Files,
	}, nil, nil
}

func hRootLookup(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	root := inst.RootStat()
	h, herr := c.inodeHandle(inst, root.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(root), nil
}

func hLookup(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	st, lerr := inst.Native().Lookup(parentIno, name)
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hLookupInode(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	st, lerr := inst.Native().LookupInode(args[1])
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

// nativeLookuper adapts one instance's native client to icache.Lookuper
// for the daemon-side whole-path walk opcode.
type nativeLookuper struct {
	native nativefs.Client
}

func (n nativeLookuper) Lookup(parentIno uint64, name string) (nativefs.Stat, error) {
	return n.native.Lookup(parentIno, name)
}

func (n nativeLookuper) Readlink(ino uint64) (string, error) {
	return n.native.Readlink(ino)
}

func hWalk(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	startIno := args[1]
	var startStat nativefs.Stat
	if startIno == 0 {
		startStat = inst.RootStat()
		startIno = startStat.Ino
	} else {
		st, lerr := inst.Native().LookupInode(startIno)
		if lerr != nil {
			return wire.Args{}, nil, ferrno.As(lerr)
		}
		startStat = st
	}

	path := wire.GetString(payload, wire.SoleStringOffset)
	w := icache.NewWalker(nativeLookuper{native: inst.Native()})
	res, werr := w.Walk(startIno, startStat, path, false)
	if werr != nil {
		return wire.Args{}, nil, werr
	}
	h, herr := c.inodeHandle(inst, res.Stat.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(res.Stat), nil
}

func hInodeRelease(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if derr := inst.Native().PutRef(ino); derr != nil {
		return wire.Args{}, nil, ferrno.As(derr)
	}
	c.dropHandle(args[0])
	return wire.Args{}, nil, nil
}

func hChdir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	startIno := inst.Cwd()
	startStat, lerr := inst.Native().LookupInode(startIno)
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}

	st := startStat
	path := wire.GetString(payload, wire.SoleStringOffset)
	if path != "" {
		w := icache.NewWalker(nativeLookuper{native: inst.Native()})
		res, werr := w.Walk(startIno, startStat, path, false)
		if werr != nil {
			return wire.Args{}, nil, werr
		}
		st = res.Stat
	}

	inst.SetCwd(st.Ino)
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hGetcwd(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, err := c.mount(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	ino := inst.Cwd()
	st, lerr := inst.Native().LookupInode(ino)
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	h, herr := c.inodeHandle(inst, ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hOpendir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	fh, operr := inst.Native().Opendir(ino)
	if operr != nil {
		return wire.Args{}, nil, ferrno.As(operr)
	}
	h, herr := c.toHandle(&dirHandleVal{inst: inst, fh: fh})
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, nil, nil
}

func hReaddir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.dir(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	entries, rerr := inst.Native().Readdir(fh, int(args[1]))
	if rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	var pb wire.PayloadBuilder
	for _, e := range entries {
		rec := make([]byte, 12)
		wire.PutU64(rec[0:8], e.Ino)
		wire.PutU32(rec[8:12], e.Mode)
		pb.PutBytes(rec)
		pb.PutString(e.Name)
	}
	return wire.Args{uint64(len(entries))}, pb.Bytes(), nil
}

func hRewinddir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.dir(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if rerr := inst.Native().Rewinddir(fh); rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	return wire.Args{}, nil, nil
}

func hReleasedir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.dir(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if rerr := inst.Native().Releasedir(fh); rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	c.dropHandle(args[0])
	return wire.Args{}, nil, nil
}

func hOpen(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	fh, operr := inst.Native().Open(ino, int(args[1]))
	if operr != nil {
		return wire.Args{}, nil, ferrno.As(operr)
	}
	h, herr := c.toHandle(&fileHandleVal{inst: inst, fh: fh})
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, nil, nil
}

func hCreate(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	fh, st, cerr := inst.Native().Create(parentIno, name, uint32(args[1]), int(args[2]))
	if cerr != nil {
		return wire.Args{}, nil, ferrno.As(cerr)
	}
	fileH, ferr := c.toHandle(&fileHandleVal{inst: inst, fh: fh})
	if ferr != nil {
		return wire.Args{}, nil, ferr
	}
	inodeH, ierr := c.inodeHandle(inst, st.Ino)
	if ierr != nil {
		return wire.Args{}, nil, ierr
	}
	return wire.Args{fileH, inodeH}, wire.EncodeStat(st), nil
}

func hClose(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if cerr := inst.Native().Close(fh); cerr != nil {
		return wire.Args{}, nil, ferrno.As(cerr)
	}
	c.dropHandle(args[0])
	return wire.Args{}, nil, nil
}

func hRead(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	buf := make([]byte, args[2])
	n, rerr := inst.Native().Read(fh, buf, int64(args[1]))
	if rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	return wire.Args{uint64(n)}, buf[:n], nil
}

func hWrite(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	n, werr := inst.Native().Write(fh, payload, int64(args[1]))
	if werr != nil {
		return wire.Args{}, nil, ferrno.As(werr)
	}
	return wire.Args{uint64(n)}, nil, nil
}

func hLseek(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	off, lerr := inst.Native().Lseek(fh, int64(args[1]), int(args[2]))
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	return wire.Args{uint64(off)}, nil, nil
}

func hFallocate(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if ferr := inst.Native().Fallocate(fh, int(args[1]), int64(args[2]), int64(args[3])); ferr != nil {
		return wire.Args{}, nil, ferrno.As(ferr)
	}
	return wire.Args{}, nil, nil
}

func hFsync(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, fh, err := c.file(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	if ferr := inst.Native().Fsync(fh); ferr != nil {
		return wire.Args{}, nil, ferrno.As(ferr)
	}
	return wire.Args{}, nil, nil
}

func hLink(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	_, newParentIno, perr := c.inode(args[1])
	if perr != nil {
		return wire.Args{}, nil, perr
	}
	newName := wire.GetString(payload, wire.SoleStringOffset)
	if lerr := inst.Native().Link(ino, newParentIno, newName); lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	return wire.Args{}, nil, nil
}

func hUnlink(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	if uerr := inst.Native().Unlink(parentIno, name); uerr != nil {
		return wire.Args{}, nil, ferrno.As(uerr)
	}
	return wire.Args{}, nil, nil
}

func hRename(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, oldParentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	_, newParentIno, perr := c.inode(args[1])
	if perr != nil {
		return wire.Args{}, nil, perr
	}
	oldName := wire.GetString(payload, wire.SoleStringOffset)
	newName := wire.GetString(payload, int(args[2]))
	if rerr := inst.Native().Rename(oldParentIno, oldName, newParentIno, newName); rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	return wire.Args{}, nil, nil
}

func hMkdir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	st, merr := inst.Native().Mkdir(parentIno, name, uint32(args[1]))
	if merr != nil {
		return wire.Args{}, nil, ferrno.As(merr)
	}
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hRmdir(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	if rerr := inst.Native().Rmdir(parentIno, name); rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	return wire.Args{}, nil, nil
}

func hMknod(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	st, merr := inst.Native().Mknod(parentIno, name, uint32(args[1]), args[2])
	if merr != nil {
		return wire.Args{}, nil, ferrno.As(merr)
	}
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hSymlink(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, parentIno, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	target := wire.GetString(payload, int(args[1]))
	st, serr := inst.Native().Symlink(parentIno, name, target)
	if serr != nil {
		return wire.Args{}, nil, ferrno.As(serr)
	}
	h, herr := c.inodeHandle(inst, st.Ino)
	if herr != nil {
		return wire.Args{}, nil, herr
	}
	return wire.Args{h}, wire.EncodeStat(st), nil
}

func hReadlink(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	target, rerr := inst.Native().Readlink(ino)
	if rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	var pb wire.PayloadBuilder
	pb.PutString(target)
	return wire.Args{}, pb.Bytes(), nil
}

func hGetattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	st, gerr := inst.Native().Getattr(ino, nativefs.StatMask(args[1]))
	if gerr != nil {
		return wire.Args{}, nil, ferrno.As(gerr)
	}
	return wire.Args{}, wire.EncodeStat(st), nil
}

func hSetattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	attrs := wire.DecodeStat(payload)
	st, serr := inst.Native().Setattr(ino, attrs, attrs.Mask)
	if serr != nil {
		return wire.Args{}, nil, ferrno.As(serr)
	}
	return wire.Args{}, wire.EncodeStat(st), nil
}

func hGetxattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	value, gerr := inst.Native().Getxattr(ino, name)
	if gerr != nil {
		return wire.Args{}, nil, ferrno.As(gerr)
	}
	return wire.Args{}, value, nil
}

func hSetxattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	value := payload[args[1]:]
	if serr := inst.Native().Setxattr(ino, name, value, int(args[2])); serr != nil {
		return wire.Args{}, nil, ferrno.As(serr)
	}
	return wire.Args{}, nil, nil
}

func hListxattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	names, lerr := inst.Native().Listxattr(ino)
	if lerr != nil {
		return wire.Args{}, nil, ferrno.As(lerr)
	}
	var pb wire.PayloadBuilder
	for _, n := range names {
		pb.PutString(n)
	}
	return wire.Args{uint64(len(names))}, pb.Bytes(), nil
}

func hRemovexattr(c *Conn, args wire.Args, payload []byte) (wire.Args, []byte, *ferrno.Error) {
	inst, ino, err := c.inode(args[0])
	if err != nil {
		return wire.Args{}, nil, err
	}
	name := wire.GetString(payload, wire.SoleStringOffset)
	if rerr := inst.Native().Removexattr(ino, name); rerr != nil {
		return wire.Args{}, nil, ferrno.As(rerr)
	}
	return wire.Args{}, nil, nil
}

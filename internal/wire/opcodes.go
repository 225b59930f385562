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

package wire

// Opcode identifies the shape of a request/reply pair. Opcode numbers are
// stable; a new opcode is appended at the end and bumps ProtocolMinor.
// This is the single array the handler table in internal/daemon is
// indexed by (spec.md section 6): an opcode beyond len(table) is ENOSYS,
// a registered slot with a nil handler is EOPNOTSUPP.
type Opcode uint16

const (
	OpVersion Opcode = iota
	OpCredNew
	OpCredDestroy
	OpMountCreate
	OpMountRelease
	OpConfReadFile
	OpConfGet
	OpConfSet
	OpInit
	OpSelectFilesystem
	OpMount
	OpUnmount
	OpStatfs
	OpRootLookup
	OpLookup
	OpLookupInode
	OpWalk
	OpInodeRelease
	OpChdir
	OpGetcwd
	OpOpendir
	OpReaddir
	OpRewinddir
	OpReleasedir
	OpOpen
	OpCreate
	OpClose
	OpRead
	OpWrite
	OpLseek
	OpFallocate
	OpFsync
	OpLink
	OpUnlink
	OpRename
	OpMkdir
	OpRmdir
	OpMknod
	OpSymlink
	OpReadlink
	OpGetattr
	OpSetattr
	OpGetxattr
	OpSetxattr
	OpListxattr
	OpRemovexattr

	opcodeCount
)

// NumOpcodes is the size the handler table in internal/daemon must be
// declared with; anything >= NumOpcodes is out of range (ENOSYS).
const NumOpcodes = int(opcodeCount)

var opcodeNames = [opcodeCount]string{
	OpVersion:           "version",
	OpCredNew:           "cred_new",
	OpCredDestroy:       "cred_destroy",
	OpMountCreate:       "mount_create",
	OpMountRelease:      "mount_release",
	OpConfReadFile:      "conf_read_file",
	OpConfGet:           "conf_get",
	OpConfSet:           "conf_set",
	OpInit:              "init",
	OpSelectFilesystem:  "select_filesystem",
	OpMount:             "mount",
	OpUnmount:           "unmount",
	OpStatfs:            "statfs",
	OpRootLookup:        "root_lookup",
	OpLookup:            "lookup",
	OpLookupInode:       "lookup_inode",
	OpWalk:              "walk",
	OpInodeRelease:      "inode_release",
	OpChdir:             "chdir",
	OpGetcwd:            "getcwd",
	OpOpendir:           "opendir",
	OpReaddir:           "readdir",
	OpRewinddir:         "rewinddir",
	OpReleasedir:        "releasedir",
	OpOpen:              "open",
	OpCreate:            "create",
	OpClose:             "close",
	OpRead:              "read",
	OpWrite:             "write",
	OpLseek:             "lseek",
	OpFallocate:         "fallocate",
	OpFsync:             "fsync",
	OpLink:              "link",
	OpUnlink:            "unlink",
	OpRename:            "rename",
	OpMkdir:             "mkdir",
	OpRmdir:             "rmdir",
	OpMknod:             "mknod",
	OpSymlink:           "symlink",
	OpReadlink:          "readlink",
	OpGetattr:           "getattr",
	OpSetattr:           "setattr",
	OpGetxattr:          "getxattr",
	OpSetxattr:          "setxattr",
	OpListxattr:         "listxattr",
	OpRemovexattr:       "removexattr",
}

func (o Opcode) String() string {
	if int(o) < 0 || int(o) >= int(opcodeCount) {
		return "unknown"
	}
	return opcodeNames[o]
}

// InRange reports whether o is a value the handler table is indexed by.
// It does not imply a handler is registered for it -- that is EOPNOTSUPP
// territory, not ENOSYS.
func (o Opcode) InRange() bool {
	return int(o) < NumOpcodes
}

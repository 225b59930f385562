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

// Package instancepool is the server-side instance pool of spec.md
// section 4.3: the policy deciding when two consumer sessions may share
// one underlying native filesystem client, the configuration-equivalence
// hashing that makes the decision deterministic, and the reference-
// counted lifecycle that tears the client down only when its last
// sharer leaves.
package instancepool

import (
	"crypto/sha256"
	"sync"

	"github.com/google/uuid"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// changeRecord is one entry of an instance's ordered pre-mount change
// log (spec.md section 3): an id/config/get/set/select_fs action.
type changeRecord struct {
	kind  string
	bytes []byte
}

func rec(kind string, fields ...string) changeRecord {
	b := []byte(kind)
	for _, f := range fields {
		b = append(b, 0)
		b = append(b, f...)
	}
	return changeRecord{kind: kind, bytes: b}
}

// Instance is one native client session: possibly a lone session,
// possibly the primary of a sibling group sharing one native.Client.
type Instance struct {
	id         string
	generation uuid.UUID // minted once at create(id) time, stable for this instance's life
	native     nativefs.Client
	changes    []changeRecord
	mounted    bool

	// primary is nil for a standalone/primary instance and points at
	// the primary when this instance is a sibling sharing the
	// primary's native client, per spec.md section 4.3 step 2.
	primary  *Instance
	siblings []*Instance

	rootStat nativefs.Stat

	// cwdMu guards cwd, this instance's working directory. It lives on
	// the instance rather than per-connection. Each Instance keeps its
	// own: a sibling's cwd is not shared with its primary, and a sibling
	// promoted to primary keeps the cwd it already had.
	cwdMu sync.Mutex
	cwd   uint64
}

// Cwd returns the instance's current working directory inode number,
// defaulting to the root inode until the first chdir.
func (inst *Instance) Cwd() uint64 {
	inst.cwdMu.Lock()
	defer inst.cwdMu.Unlock()
	if inst.cwd == 0 {
		return inst.RootStat().Ino
	}
	return inst.cwd
}

// SetCwd updates the instance's working directory inode number.
func (inst *Instance) SetCwd(ino uint64) {
	inst.cwdMu.Lock()
	defer inst.cwdMu.Unlock()
	inst.cwd = ino
}

// newInstance implements create(id): a fresh instance carrying the
// initial change record ["id", id].
func newInstance(id string, factory nativefs.Factory) (*Instance, *ferrno.Error) {
	native, err := factory(id)
	if err != nil {
		return nil, ferrno.As(err)
	}
	return &Instance{
		id:         id,
		generation: uuid.New(),
		native:     native,
		changes:    []changeRecord{rec("id", id)},
	}, nil
}

// Generation is a unique tag minted when this instance was created,
// distinguishing two successive create(id)/mount/unmount cycles against
// the same id in logs and diagnostics even though their config-digests
// (and therefore bucket placement) may coincide.
func (inst *Instance) Generation() uuid.UUID { return inst.generation }

func (inst *Instance) requirePreMount() *ferrno.Error {
	if inst.mounted || inst.primary != nil {
		return ferrno.ErrConfigAfterMount
	}
	return nil
}

func (inst *Instance) ConfReadFile(canonicalPath string) *ferrno.Error {
	if err := inst.requirePreMount(); err != nil {
		return err
	}
	if err := inst.native.ConfReadFile(canonicalPath); err != nil {
		return ferrno.As(err)
	}
	inst.changes = append(inst.changes, rec("conf_read_file", canonicalPath))
	return nil
}

func (inst *Instance) ConfGet(key string) (string, *ferrno.Error) {
	if err := inst.requirePreMount(); err != nil {
		return "", err
	}
	v, err := inst.native.ConfGet(key)
	if err != nil {
		return "", ferrno.As(err)
	}
	inst.changes = append(inst.changes, rec("get", key))
	return v, nil
}

func (inst *Instance) ConfSet(key, value string) *ferrno.Error {
	if err := inst.requirePreMount(); err != nil {
		return err
	}
	if err := inst.native.ConfSet(key, value); err != nil {
		return ferrno.As(err)
	}
	inst.changes = append(inst.changes, rec("set", key, value))
	return nil
}

func (inst *Instance) SelectFilesystem(name string) *ferrno.Error {
	if err := inst.requirePreMount(); err != nil {
		return err
	}
	if err := inst.native.SelectFilesystem(name); err != nil {
		return ferrno.As(err)
	}
	inst.changes = append(inst.changes, rec("select_fs", name))
	return nil
}

func (inst *Instance) Init() *ferrno.Error {
	if err := inst.requirePreMount(); err != nil {
		return err
	}
	if err := inst.native.Init(); err != nil {
		return ferrno.As(err)
	}
	return nil
}

// digest computes the SHA-256 over the ordered change list, each
// record's bytes concatenated in order (spec.md section 4.3 step 1).
func (inst *Instance) digest() [32]byte {
	h := sha256.New()
	for _, c := range inst.changes {
		h.Write(c.bytes)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Native returns the native client this instance's operations should
// run against: its own, unless it has been absorbed as a sibling, in
// which case the primary's.
func (inst *Instance) Native() nativefs.Client {
	if inst.primary != nil {
		return inst.primary.native
	}
	return inst.native
}

// RootStat returns the cached mount-time root attributes.
func (inst *Instance) RootStat() nativefs.Stat {
	if inst.primary != nil {
		return inst.primary.rootStat
	}
	return inst.rootStat
}

func (inst *Instance) isMounted() bool {
	return inst.mounted || inst.primary != nil
}

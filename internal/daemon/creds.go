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
	"github.com/ceph/cephfsproxyd/internal/handle"
)

// credentials is the process-wide half of spec.md section 4.2's two-
// scrambler design: unlike mount/inode/file/dir handles, a credential
// handle is not tied to the connection that minted it, so it is scrambled
// with a scrambler and backed by a slot table shared across every
// connection rather than Conn's per-connection pair. handle.SlotTable is
// already mutex-guarded, so the only addition needed here is the shared
// scrambler and a place to hang both off Server.
type credentials struct {
	scrambler *handle.Scrambler
	slots     *handle.SlotTable
}

func newCredentials() (*credentials, error) {
	s, err := handle.New()
	if err != nil {
		return nil, err
	}
	return &credentials{scrambler: s, slots: handle.NewSlotTable()}, nil
}

func (cr *credentials) put(v *credentialVal) (uint64, *ferrno.Error) {
	raw := cr.slots.Put(v)
	return cr.scrambler.Scramble(raw)
}

func (cr *credentials) drop(wireHandle uint64) {
	raw, err := cr.scrambler.Unscramble(wireHandle)
	if err != nil {
		return
	}
	cr.slots.Delete(raw)
}

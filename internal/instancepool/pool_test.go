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

package instancepool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

func mustCreate(t *testing.T, p *Pool, id string) *Instance {
	t.Helper()
	inst, err := p.Create(id)
	require.Nil(t, err)
	return inst
}

// TestSharedInstance implements spec.md section 8's "Shared instance"
// scenario: three sessions with the same id and the same
// set("client_acl_type", "posix_acl") share a single
// native client, and unmount ordering tears it down exactly once, on
// the last sharer's exit.
func TestSharedInstance(t *testing.T) {
	p := New(nativefs.NewFake, nil)

	sessions := make([]*Instance, 3)
	for i := range sessions {
		inst := mustCreate(t, p, "client.admin")
		require.Nil(t, inst.ConfSet("client_acl_type", "posix_acl"))
		sessions[i] = inst
	}

	for _, inst := range sessions {
		_, err := p.Mount(inst)
		require.Nil(t, err)
	}
	require.Equal(t, 1, p.ActiveNativeCount())

	require.Nil(t, p.Unmount(sessions[0]))
	require.Equal(t, 1, p.ActiveNativeCount())
	require.Nil(t, p.Unmount(sessions[1]))
	require.Equal(t, 1, p.ActiveNativeCount())
	require.Nil(t, p.Unmount(sessions[2]))
	require.Equal(t, 0, p.ActiveNativeCount())
}

// TestDivergentInstance implements spec.md section 8's "Divergent
// instance" scenario: two sessions differing by one set() call end up
// as two distinct native clients.
func TestDivergentInstance(t *testing.T) {
	p := New(nativefs.NewFake, nil)

	a := mustCreate(t, p, "client.admin")
	require.Nil(t, a.ConfSet("client_acl_type", "posix_acl"))

	b := mustCreate(t, p, "client.admin")
	require.Nil(t, b.ConfSet("client_acl_type", "none"))

	_, err := p.Mount(a)
	require.Nil(t, err)
	_, err = p.Mount(b)
	require.Nil(t, err)

	require.Equal(t, 2, p.ActiveNativeCount())

	require.Nil(t, p.Unmount(a))
	require.Equal(t, 1, p.ActiveNativeCount())
	require.Nil(t, p.Unmount(b))
	require.Equal(t, 0, p.ActiveNativeCount())
}

func TestConfigAfterMountRejected(t *testing.T) {
	p := New(nativefs.NewFake, nil)
	inst := mustCreate(t, p, "client.admin")
	_, err := p.Mount(inst)
	require.Nil(t, err)

	serr := inst.ConfSet("k", "v")
	require.NotNil(t, serr)
	require.Equal(t, ferrno.ErrConfigAfterMount.Errno, serr.Errno)
}

func TestUnmountPromotesSibling(t *testing.T) {
	p := New(nativefs.NewFake, nil)

	a := mustCreate(t, p, "client.admin")
	b := mustCreate(t, p, "client.admin")

	_, err := p.Mount(a)
	require.Nil(t, err)
	_, err = p.Mount(b)
	require.Nil(t, err)
	require.Equal(t, 1, p.ActiveNativeCount())

	// a was the primary; unmounting it must promote b rather than
	// tearing the native client down.
	require.Nil(t, p.Unmount(a))
	require.Equal(t, 1, p.ActiveNativeCount())

	require.Nil(t, p.Unmount(b))
	require.Equal(t, 0, p.ActiveNativeCount())
}

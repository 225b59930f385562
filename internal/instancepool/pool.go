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
	"github.com/jacobsa/syncutil"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/logbus"
	"github.com/ceph/cephfsproxyd/internal/metrics"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

const numBuckets = 256

// Pool is the process-wide instance pool of spec.md section 4.3/4.4:
// 256 hash buckets indexed by the first byte of the digest, one
// exclusive mutex protecting bucket membership, never held across a
// call into the native client library.
type Pool struct {
	mu      syncutil.InvariantMutex // GUARDED_BY annotations below refer to this
	buckets [numBuckets]*Instance   // GUARDED_BY(mu): primary instance per bucket
	factory nativefs.Factory
	log     *logbus.Bus
	metrics *metrics.Registry
}

func New(factory nativefs.Factory, log *logbus.Bus) *Pool {
	p := &Pool{factory: factory, log: log}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)
	return p
}

// SetMetrics attaches a metrics registry the pool reports its
// active/shared instance counts to. Optional: a Pool with no registry
// attached simply skips the gauge updates.
func (p *Pool) SetMetrics(m *metrics.Registry) { p.metrics = m }

func (p *Pool) checkInvariants() {
	for i, inst := range p.buckets {
		if inst == nil {
			continue
		}
		if !inst.isMounted() {
			panic("pool: bucket holds an unmounted primary")
		}
		if inst.primary != nil {
			panic("pool: bucket holds a non-primary instance")
		}
		_ = i
	}
}

// Create implements create(id): allocate a fresh, unmounted instance.
// It is not yet in any bucket -- bucket membership begins at Mount.
func (p *Pool) Create(id string) (*Instance, *ferrno.Error) {
	return newInstance(id, p.factory)
}

// Mount runs spec.md section 4.3's mount algorithm: compute the digest,
// scan the bucket for an equal-digest primary to share, or become the
// primary.
func (p *Pool) Mount(inst *Instance) (nativefs.Stat, *ferrno.Error) {
	if inst.isMounted() {
		return nativefs.Stat{}, ferrno.ErrConfigAfterMount
	}

	digest := inst.digest()
	bucketIdx := digest[0]

	p.mu.Lock()
	primary := p.buckets[bucketIdx]
	if primary != nil && primary.digest() == digest {
		// Shareable: absorb inst as a sibling and discard the native
		// client it was holding (spec.md section 4.3 step 2).
		primary.siblings = append(primary.siblings, inst)
		inst.primary = primary
		p.mu.Unlock()

		if p.log != nil {
			p.log.Infof("instancepool: sharing instance for id %q with %d existing sibling(s)", inst.id, len(primary.siblings)-1)
		}
		if p.metrics != nil {
			p.metrics.SharedInstances.Inc()
		}
		return primary.rootStat, nil
	}
	p.mu.Unlock()

	// Not shareable: mount for real, becoming the primary.
	root, err := inst.native.Mount()
	if err != nil {
		return nativefs.Stat{}, ferrno.As(err)
	}
	inst.mounted = true
	inst.rootStat = root

	p.mu.Lock()
	p.buckets[bucketIdx] = inst
	p.mu.Unlock()

	if p.log != nil {
		p.log.Infof("instancepool: mounted new primary instance for id %q generation %s", inst.id, inst.generation)
	}
	if p.metrics != nil {
		p.metrics.ActiveInstances.Inc()
	}
	return root, nil
}

// Unmount runs spec.md section 4.3's unmount algorithm: if inst has
// siblings, drop (or promote) one; otherwise remove the bucket entry and
// issue the real native unmount. The native client is torn down exactly
// when the combined primary+siblings reference count reaches zero.
func (p *Pool) Unmount(inst *Instance) *ferrno.Error {
	if !inst.isMounted() {
		return ferrno.ErrNotMounted
	}

	if inst.primary != nil {
		primary := inst.primary
		p.mu.Lock()
		primary.siblings = removeSibling(primary.siblings, inst)
		p.mu.Unlock()
		inst.primary = nil
		if p.metrics != nil {
			p.metrics.SharedInstances.Dec()
		}
		return nil
	}

	digest := inst.digest()
	bucketIdx := digest[0]

	p.mu.Lock()
	if len(inst.siblings) > 0 {
		// Promote one sibling to standalone; no native unmount.
		sibling := inst.siblings[0]
		inst.siblings = inst.siblings[1:]
		sibling.primary = nil
		sibling.mounted = true
		sibling.rootStat = inst.rootStat
		sibling.native = inst.native
		sibling.siblings = inst.siblings
		for _, s := range sibling.siblings {
			s.primary = sibling
		}
		p.buckets[bucketIdx] = sibling
		p.mu.Unlock()
		if p.metrics != nil {
			// sibling is promoted to primary: no longer counted shared.
			p.metrics.SharedInstances.Dec()
		}
		return nil
	}
	p.buckets[bucketIdx] = nil
	p.mu.Unlock()

	if err := inst.native.Unmount(); err != nil {
		return ferrno.As(err)
	}
	inst.mounted = false
	if p.metrics != nil {
		p.metrics.ActiveInstances.Dec()
	}
	return nil
}

func removeSibling(siblings []*Instance, target *Instance) []*Instance {
	out := siblings[:0]
	for _, s := range siblings {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// ActiveNativeCount reports how many distinct native clients are
// currently mounted, the quantity spec.md section 8's scenarios assert
// on directly ("the daemon's native client count is exactly 1").
func (p *Pool) ActiveNativeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, inst := range p.buckets {
		if inst != nil {
			n++
		}
	}
	return n
}

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

// Command cephfsproxy-bench repeatedly looks up one name under the
// mount root over an already-running cephfsproxyd, reporting round-trip
// latency percentiles -- a shim consumer exercising the same Session/
// Mount API a real client would use, standing in for the teacher's own
// benchmarks/stat_files.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ceph/cephfsproxyd/cmd/cephfsproxy-bench/internal/percentile"
	"github.com/ceph/cephfsproxyd/internal/shim"
)

var (
	fSocket     = flag.String("socket", "/var/run/cephfsproxyd.sock", "Daemon socket to dial.")
	fClientID   = flag.String("id", "bench", "Mount instance id to create(id) with.")
	fName       = flag.String("name", ".", "Name to repeatedly look up under the mount root.")
	fIterations = flag.Int("iterations", 10000, "Number of lookups to perform.")
)

func main() {
	flag.Parse()

	sess, err := shim.Dial(*fSocket, 5, 100*time.Millisecond)
	if err != nil {
		log.Fatalf("dialing %s: %v", *fSocket, err)
	}
	defer sess.Close()

	m, ferr := shim.NewMount(sess, *fClientID)
	if ferr != nil {
		log.Fatalf("creating mount instance: %v", ferr)
	}
	if _, ferr := m.MountFS(); ferr != nil {
		log.Fatalf("mounting: %v", ferr)
	}
	defer m.Unmount()

	durations := make(percentile.DurationSlice, 0, *fIterations)
	for i := 0; i < *fIterations; i++ {
		start := time.Now()
		n, ferr := m.Lookup(m.Root(), *fName)
		elapsed := time.Since(start)
		if ferr != nil {
			log.Fatalf("lookup %d: %v", i, ferr)
		}
		m.Put(n)
		durations = append(durations, elapsed)
	}

	sort.Sort(durations)
	fmt.Printf("lookups: %d\n", len(durations))
	fmt.Printf("p50: %v\n", percentile.Duration(durations, 50))
	fmt.Printf("p90: %v\n", percentile.Duration(durations, 90))
	fmt.Printf("p99: %v\n", percentile.Duration(durations, 99))
}

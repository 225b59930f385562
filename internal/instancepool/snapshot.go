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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/logbus"
)

// Snapshotter turns a caller-supplied configuration file path into a
// canonical, content-addressed copy, per spec.md section 3: the daemon
// never trusts a path a consumer hands it to stay unchanged, and two
// instances pointed at the same bytes through different paths must
// still hash equal in the change log.
type Snapshotter struct {
	Dir string // working directory snapshots are published into
	Log *logbus.Bus
}

// Snapshot reads srcPath, publishes it atomically as
// ceph-<sha256-hex>.conf in s.Dir, and returns the canonical filename
// (not the full path) to record in the instance's change log.
//
// The source is re-stat'd after the read; a size or mtime change during
// the read does not fail the call and the contents read are still used.
// The change is only logged as a warning; the return values do not
// report it to the caller.
func (s *Snapshotter) Snapshot(srcPath string) (string, *ferrno.Error) {
	before, statErr := os.Stat(srcPath)
	if statErr != nil {
		return "", ferrno.As(statErr)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", ferrno.As(err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.Dir, ".ceph-snapshot-*")
	if err != nil {
		return "", ferrno.As(err)
	}
	tmpPath := tmp.Name()
	removeTmp := true
	defer func() {
		if removeTmp {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), src); err != nil {
		tmp.Close()
		return "", ferrno.As(err)
	}
	if err := tmp.Close(); err != nil {
		return "", ferrno.As(err)
	}

	after, statErr := os.Stat(srcPath)
	if statErr == nil && (after.Size() != before.Size() || after.ModTime() != before.ModTime()) {
		if s.Log != nil {
			s.Log.Warnf("instancepool: %s changed while being snapshotted; using possibly-inconsistent contents", srcPath)
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	name := fmt.Sprintf("ceph-%s.conf", digest)
	dst := filepath.Join(s.Dir, name)

	if err := os.Link(tmpPath, dst); err != nil {
		if os.IsExist(err) {
			// Same digest already published: tolerated per spec.md
			// section 4.4.
			return name, nil
		}
		return "", ferrno.As(err)
	}
	removeTmp = false
	os.Remove(tmpPath)
	return name, nil
}

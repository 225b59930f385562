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

package icache

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ceph/cephfsproxyd/internal/ferrno"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// maxSymlinkIndirections bounds path walking per spec.md section 4.4.
const maxSymlinkIndirections = 16

// Lookuper is the collaborator a Walker resolves path components
// against: a single-component lookup and a symlink-target read.
// nativefs.Client satisfies this structurally, for daemon-side walking;
// the shim's Session does not, and the shim does not use Walker.
type Lookuper interface {
	Lookup(parentIno uint64, name string) (nativefs.Stat, error)
	Readlink(ino uint64) (string, error)
}

// tailNode is one link of the linked-list-of-string-tails structure of
// spec.md section 4.4 step 1: a path component plus the rest of the
// path still to walk, so a symlink target can be prepended without
// copying what follows it.
type tailNode struct {
	component string
	rest      *tailNode
}

func splitTail(path string) *tailNode {
	parts := strings.Split(path, "/")
	var head, tail *tailNode
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue // skip empty components between consecutive slashes
		}
		head = &tailNode{component: parts[i], rest: tail}
		tail = head
	}
	return head
}

func prepend(target string, rest *tailNode) *tailNode {
	targetNodes := splitTail(target)
	if targetNodes == nil {
		return rest
	}
	last := targetNodes
	for last.rest != nil {
		last = last.rest
	}
	last.rest = rest
	return targetNodes
}

// Walker resolves a path string to a terminal inode, per spec.md
// section 4.4.
type Walker struct {
	src Lookuper
}

func NewWalker(src Lookuper) *Walker {
	return &Walker{src: src}
}

// Result is the outcome of a successful walk: the terminal stat and,
// if the caller asked for one, the resolved canonical path.
type Result struct {
	Stat         nativefs.Stat
	ResolvedPath string
}

// Walk resolves path starting from rootIno/rootStat, following "."/".."
// and symlinks, per spec.md section 4.4. wantResolved requests the
// maintained resolved-path buffer.
func (w *Walker) Walk(rootIno uint64, rootStat nativefs.Stat, path string, wantResolved bool) (Result, *ferrno.Error) {
	type ancestor struct {
		ino  uint64
		stat nativefs.Stat
	}

	cur := ancestor{ino: rootIno, stat: rootStat}
	stack := []ancestor{cur}
	var resolved []string

	tail := splitTail(path)
	indirections := 0

	for tail != nil {
		name := tail.component
		tail = tail.rest

		switch name {
		case ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
				if len(resolved) > 0 {
					resolved = resolved[:len(resolved)-1]
				}
			}
			// ".." at the root resolves to the root itself.
			cur = stack[len(stack)-1]
			continue
		}

		st, err := w.src.Lookup(cur.ino, name)
		if err != nil {
			return Result{}, ferrno.As(err)
		}

		if st.Mode&unix.S_IFMT == unix.S_IFLNK && tail != nil {
			// Not the final component: follow the symlink.
			indirections++
			if indirections > maxSymlinkIndirections {
				return Result{}, ferrno.ErrTooManySymlinks
			}
			target, lerr := w.src.Readlink(st.Ino)
			if lerr != nil {
				return Result{}, ferrno.As(lerr)
			}
			if strings.HasPrefix(target, "/") {
				cur = ancestor{ino: rootIno, stat: rootStat}
				stack = []ancestor{cur}
				resolved = resolved[:0]
			}
			tail = prepend(target, tail)
			continue
		}

		cur = ancestor{ino: st.Ino, stat: st}
		stack = append(stack, cur)
		resolved = append(resolved, name)
	}

	res := Result{Stat: cur.stat}
	if wantResolved {
		res.ResolvedPath = "/" + strings.Join(resolved, "/")
	}
	return res, nil
}

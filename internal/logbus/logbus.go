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

// Package logbus implements the process-wide log bus described in
// spec.md section 6: subscribers register a callback receiving
// (level, errno, message); messages are truncated to a fixed length,
// with overflow marked by a "[...]" suffix, and re-entrant logging from
// inside a subscriber is suppressed.
package logbus

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Critical
)

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warn:
		return logrus.WarnLevel
	case Error:
		return logrus.ErrorLevel
	default:
		return logrus.FatalLevel
	}
}

// recordBufCap bounds the formatted message kept per record; longer
// messages are truncated with a "[...]" suffix, matching the C source's
// fixed per-thread formatting buffer.
const recordBufCap = 1024

// Subscriber is a registered log callback with its own minimum level,
// following proxy_log.c's per-callback level gate.
type Subscriber struct {
	MinLevel Level
	Callback func(level Level, errno int, msg string)
}

// Bus is the process-wide log subscriber table. The zero value is not
// usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscriber
	next int

	busy  int32 // re-entrancy guard; see emit
	abort func()
}

func New() *Bus {
	return &Bus{
		subs:  make(map[int]*Subscriber),
		abort: func() { os.Exit(1) },
	}
}

// SetAbort overrides the action taken by Critical after logging; tests
// substitute a non-exiting function.
func (b *Bus) SetAbort(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abort = fn
}

// Subscribe registers a callback and returns a token for Unsubscribe.
func (b *Bus) Subscribe(sub *Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = sub
	return id
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// emit formats and fans a record out to subscribers. The C original keys
// its "busy" flag per thread; Go exposes no portable goroutine-local
// storage, so this is a single process-wide guard instead. It still
// serves the documented purpose -- a subscriber callback that itself
// logs does not recurse back through every subscriber -- at the cost of
// also skipping an unrelated concurrent caller's subscriber fan-out
// while one is in flight. That tradeoff is recorded in DESIGN.md.
func (b *Bus) emit(level Level, errno int, msg string) {
	if len(msg) > recordBufCap {
		msg = msg[:recordBufCap-5] + "[...]"
	}

	entry := logrus.WithField("errno", errno)
	entry.Log(level.logrusLevel(), msg)

	if !atomic.CompareAndSwapInt32(&b.busy, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&b.busy, 0)

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if level >= s.MinLevel {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.Callback(level, errno, msg)
	}
}

func (b *Bus) Debugf(format string, args ...interface{}) { b.logf(Debug, 0, format, args...) }
func (b *Bus) Infof(format string, args ...interface{})  { b.logf(Info, 0, format, args...) }
func (b *Bus) Warnf(format string, args ...interface{})  { b.logf(Warn, 0, format, args...) }
func (b *Bus) Errf(errno int, format string, args ...interface{}) {
	b.logf(Error, errno, format, args...)
}

// Critical logs at the fatal level then invokes the configured abort
// function. Per spec.md section 7, allocation failure inside a
// mutex-held critical section and mutex-acquisition failure are both
// fatal-only conditions that route through here.
func (b *Bus) Critical(errno int, format string, args ...interface{}) {
	b.logf(Critical, errno, format, args...)
	b.mu.RLock()
	abort := b.abort
	b.mu.RUnlock()
	abort()
}

func (b *Bus) logf(level Level, errno int, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	b.emit(level, errno, msg)
}

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

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jacobsa/daemonize"

	"github.com/ceph/cephfsproxyd/internal/cfg"
	"github.com/ceph/cephfsproxyd/internal/daemon"
	"github.com/ceph/cephfsproxyd/internal/instancepool"
	"github.com/ceph/cephfsproxyd/internal/logbus"
	"github.com/ceph/cephfsproxyd/internal/metrics"
	"github.com/ceph/cephfsproxyd/internal/nativefs"
)

// inBackgroundEnvVar marks a re-exec'd child as already daemonized, the
// same role logger.GCSFuseInBackgroundMode plays for the teacher's own
// daemonize.Run dance.
const inBackgroundEnvVar = "CEPHFSPROXYD_IN_BACKGROUND"

// runDaemon either re-execs the current binary in the background and
// waits for its outcome (the default), or runs the daemon loop directly
// (foreground, or already the re-exec'd child).
func runDaemon(c cfg.Config, foreground bool) error {
	if !foreground && os.Getenv(inBackgroundEnvVar) == "" {
		return daemonizeSelf()
	}

	configureLogging(c.Logging)

	log := logbus.New()
	mreg := metrics.New()

	pool := instancepool.New(nativefs.NewFake, log)
	pool.SetMetrics(mreg)

	snapDir := filepath.Join(os.TempDir(), "cephfsproxyd-snapshots")
	if err := os.MkdirAll(snapDir, 0700); err != nil {
		signalOutcome(err)
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	snap := &instancepool.Snapshotter{Dir: snapDir, Log: log}

	srv, err := daemon.NewServer(pool, snap, log)
	if err != nil {
		signalOutcome(err)
		return fmt.Errorf("constructing server: %w", err)
	}
	srv.Metrics = mreg

	if err := srv.Listen(c.Socket.Path); err != nil {
		signalOutcome(err)
		return fmt.Errorf("listening on %s: %w", c.Socket.Path, err)
	}

	if c.Metrics.ListenAddr != "" {
		go serveMetricsHTTP(c.Metrics.ListenAddr, mreg, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("cephfsproxyd: shutting down on signal")
		srv.Shutdown()
	}()

	log.Infof("cephfsproxyd: listening on %s", c.Socket.Path)
	signalOutcome(nil)

	return srv.Serve()
}

// signalOutcome tells a daemonize.Run-launched parent whether startup
// succeeded; it is a silent no-op when this process was not launched
// that way (i.e. running in the foreground).
func signalOutcome(err error) {
	if os.Getenv(inBackgroundEnvVar) == "" {
		return
	}
	if serr := daemonize.SignalOutcome(err); serr != nil {
		fmt.Fprintf(os.Stderr, "cephfsproxyd: failed to signal daemonize outcome: %v\n", serr)
	}
}

// daemonizeSelf re-execs the current binary with inBackgroundEnvVar set,
// via jacobsa/daemonize, and blocks until the child signals its own
// startup outcome -- success or failure -- the way gcsfuse's own
// foreground/background mount split works.
func daemonizeSelf() error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	env := append(os.Environ(), inBackgroundEnvVar+"=1")
	args := append([]string{"--foreground"}, os.Args[1:]...)

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	return nil
}

func serveMetricsHTTP(addr string, reg *metrics.Registry, log *logbus.Bus) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("cephfsproxyd: metrics server stopped: %v", err)
	}
}

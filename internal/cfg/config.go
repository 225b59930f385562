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

// Package cfg is this proxy's configuration surface: a flat struct bound
// to flags/env/config-file via viper, following cfg/config.go's shape but
// scoped to what a wire-protocol proxy daemon actually needs rather than
// a FUSE mount's full option set.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the daemon's full set of tunables. Every field has a
// corresponding flag bound in BindFlags.
type Config struct {
	Socket  SocketConfig  `yaml:"socket"`
	Logging LoggingConfig `yaml:"logging"`
	Debug   DebugConfig   `yaml:"debug"`
	Walk    WalkConfig    `yaml:"walk"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type SocketConfig struct {
	// Path is the Unix domain socket the daemon listens on and the shim
	// dials. Overridden by the daemon's optional positional argument.
	Path string `yaml:"path"`

	// MaxFrameBytes is the configured cap on a single wire frame's
	// payload, standing in for proxy_buffer.c's growable-receive-buffer
	// cap (spec.md section 4.1). The daemon does not read it: its
	// connections always use wire.DefaultMaxFrame (64 MiB) as the cap
	// beyond which a frame is rejected with ENOBUFS.
	MaxFrameBytes int `yaml:"max-frame-bytes"`
}

type LoggingConfig struct {
	Severity string `yaml:"severity"` // one of logbus's Level names
	Format   string `yaml:"format"`   // "text" or "json", passed to logrus
}

type DebugConfig struct {
	// ExitOnInvariantViolation selects between os.Exit and a panic on a
	// broken InvariantMutex invariant. Mirrors
	// cfg.DebugConfig.ExitOnInvariantViolation. The daemon does not read
	// it; setting it has no effect on the instance pool's mutex.
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
}

type WalkConfig struct {
	// MaxSymlinkDepth is the configured symlink-indirection limit for a
	// path walk (spec.md section 4.4, grounded on proxy_client.c's fixed
	// symlink-loop cap). The path walker does not read it: icache's
	// Walker fails with ELOOP after a fixed 16 indirections.
	MaxSymlinkDepth int `yaml:"max-symlink-depth"`
}

type MetricsConfig struct {
	// ListenAddr is the address the Prometheus /metrics endpoint binds
	// to. Empty disables the metrics HTTP server entirely.
	ListenAddr string `yaml:"listen-addr"`
}

// Default returns the configuration the daemon runs with absent any
// flags, env vars, or config file.
func Default() Config {
	return Config{
		Socket: SocketConfig{
			Path:          "/var/run/cephfsproxyd.sock",
			MaxFrameBytes: 64 << 20,
		},
		Logging: LoggingConfig{
			Severity: "INFO",
			Format:   "text",
		},
		Debug: DebugConfig{
			ExitOnInvariantViolation: true,
		},
		Walk: WalkConfig{
			MaxSymlinkDepth: 40,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9116",
		},
	}
}

// BindFlags registers every Config field as a pflag and binds it into
// viper under the matching dotted key, following cfg.BindFlags's
// per-field flag/bind pairing.
func BindFlags(flagSet *pflag.FlagSet) error {
	def := Default()

	flagSet.StringP("socket-path", "", def.Socket.Path, "Unix domain socket to listen on.")
	if err := viper.BindPFlag("socket.path", flagSet.Lookup("socket-path")); err != nil {
		return err
	}

	flagSet.IntP("max-frame-bytes", "", def.Socket.MaxFrameBytes, "Maximum accepted wire frame payload size, in bytes. Not read by the daemon, which uses a fixed 64 MiB cap.")
	if err := viper.BindPFlag("socket.max-frame-bytes", flagSet.Lookup("max-frame-bytes")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", def.Logging.Severity, "Minimum log level: DEBUG, INFO, WARN, ERROR, CRITICAL.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", def.Logging.Format, "Log record format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.BoolP("exit-on-invariant-violation", "", def.Debug.ExitOnInvariantViolation, "Exit the process when an internal invariant is violated, instead of panicking. Not read by the daemon.")
	if err := viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("exit-on-invariant-violation")); err != nil {
		return err
	}

	flagSet.IntP("max-symlink-depth", "", def.Walk.MaxSymlinkDepth, "Maximum symlink indirections a path walk follows before failing with ELOOP. Not read by the path walker, which uses a fixed 16.")
	if err := viper.BindPFlag("walk.max-symlink-depth", flagSet.Lookup("max-symlink-depth")); err != nil {
		return err
	}

	flagSet.StringP("metrics-listen-addr", "", def.Metrics.ListenAddr, "Address the Prometheus /metrics endpoint binds to; empty disables it.")
	if err := viper.BindPFlag("metrics.listen-addr", flagSet.Lookup("metrics-listen-addr")); err != nil {
		return err
	}

	return nil
}

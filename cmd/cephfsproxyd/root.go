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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ceph/cephfsproxyd/internal/cfg"
)

var (
	cfgFile       string
	foreground    bool
	bindErr       error
	configFileErr error
	unmarshalErr  error
	runConfig     cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cephfsproxyd",
	Short: "Multiplex many libcephfs client sessions over one Unix socket",
	Long: `cephfsproxyd listens on a Unix domain socket and serves the wire
protocol consumed by the cephfsproxyd client shim, pooling native
client sessions that share configuration-equivalent mounts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if len(args) == 1 {
			runConfig.Socket.Path = args[0]
		}
		if err := cfg.Validate(&runConfig); err != nil {
			return err
		}
		return runDaemon(runConfig, foreground)
	},
}

// Execute runs the root command, printing any error to stderr and
// exiting non-zero -- the process exit-code contract the shim's
// consumers rely on to tell a clean shutdown from a startup failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&foreground, "foreground", false, "Run in the foreground instead of daemonizing")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	runConfig = cfg.Default()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}
	unmarshalErr = viper.Unmarshal(&runConfig)
}

// severityLevels maps logbus's own severity names (validated by
// cfg.Validate) onto logrus levels, rather than trusting
// logrus.ParseLevel to agree with logbus's naming.
var severityLevels = map[string]logrus.Level{
	"DEBUG":    logrus.DebugLevel,
	"INFO":     logrus.InfoLevel,
	"WARN":     logrus.WarnLevel,
	"ERROR":    logrus.ErrorLevel,
	"CRITICAL": logrus.FatalLevel,
}

// configureLogging applies the resolved logging config to logrus, the
// sink every logbus.Bus record ultimately passes through.
func configureLogging(c cfg.LoggingConfig) {
	if lvl, ok := severityLevels[c.Severity]; ok {
		logrus.SetLevel(lvl)
	}
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

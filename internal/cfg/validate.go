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

package cfg

import "fmt"

const (
	SocketPathRequiredError     = "socket.path must not be empty"
	MaxFrameBytesInvalidError   = "socket.max-frame-bytes must be positive"
	LogSeverityInvalidError     = "logging.severity must be one of DEBUG, INFO, WARN, ERROR, CRITICAL"
	LogFormatInvalidError       = "logging.format must be one of text, json"
	MaxSymlinkDepthInvalidError = "walk.max-symlink-depth must be positive"
)

// validSeverities matches logbus.Level's five levels exactly.
var validSeverities = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "CRITICAL": true,
}

var validFormats = map[string]bool{
	"text": true, "json": true,
}

// Validate returns a non-nil error if c is unfit to run the daemon with,
// following cfg.ValidateConfig's one-check-per-field, wrapped-error shape.
func Validate(c *Config) error {
	if c.Socket.Path == "" {
		return fmt.Errorf(SocketPathRequiredError)
	}
	if c.Socket.MaxFrameBytes <= 0 {
		return fmt.Errorf(MaxFrameBytesInvalidError)
	}
	if !validSeverities[c.Logging.Severity] {
		return fmt.Errorf(LogSeverityInvalidError)
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf(LogFormatInvalidError)
	}
	if c.Walk.MaxSymlinkDepth <= 0 {
		return fmt.Errorf(MaxSymlinkDepthInvalidError)
	}
	return nil
}

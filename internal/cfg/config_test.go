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

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	d := Default()
	require.NoError(t, Validate(&d))
}

func TestValidateRejectsEmptySocketPath(t *testing.T) {
	c := Default()
	c.Socket.Path = ""
	err := Validate(&c)
	require.Error(t, err)
	assert.EqualError(t, err, SocketPathRequiredError)
}

func TestValidateRejectsNonPositiveMaxFrame(t *testing.T) {
	c := Default()
	c.Socket.MaxFrameBytes = 0
	require.EqualError(t, Validate(&c), MaxFrameBytesInvalidError)
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	c := Default()
	c.Logging.Severity = "VERBOSE"
	require.EqualError(t, Validate(&c), LogSeverityInvalidError)
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	c := Default()
	c.Logging.Format = "xml"
	require.EqualError(t, Validate(&c), LogFormatInvalidError)
}

func TestValidateRejectsNonPositiveSymlinkDepth(t *testing.T) {
	c := Default()
	c.Walk.MaxSymlinkDepth = -1
	require.EqualError(t, Validate(&c), MaxSymlinkDepthInvalidError)
}

func TestBindFlagsSetsDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))

	assert.Equal(t, Default().Socket.Path, viper.GetString("socket.path"))
	assert.Equal(t, Default().Socket.MaxFrameBytes, viper.GetInt("socket.max-frame-bytes"))
	assert.Equal(t, Default().Logging.Severity, viper.GetString("logging.severity"))
}

func TestBindFlagsHonorsOverride(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--socket-path=/tmp/other.sock", "--log-format=json"}))

	assert.Equal(t, "/tmp/other.sock", viper.GetString("socket.path"))
	assert.Equal(t, "json", viper.GetString("logging.format"))
}

package widgettoolkit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
capabilities:
  - org.matrix.msc2762.receive.state_event:m.room.name
  - org.matrix.msc2931.navigate
support_standalone: true
openid_leeway: 1m
`), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"org.matrix.msc2762.receive.state_event:m.room.name",
		"org.matrix.msc2931.navigate",
	}, c.Capabilities)

	var o options
	for _, opt := range c.Options() {
		opt(&o)
	}
	assert.True(t, o.supportStandalone)
	assert.Equal(t, time.Minute, o.openIDLeeway)
	assert.Len(t, c.Identifiers(), 2)
}

func TestParseConfigErrors(t *testing.T) {
	for _, input := range []string{
		"capabilities: nope",
		"unknown_key: 1",
		"openid_leeway: soon",
		"openid_leeway: -1s",
	} {
		_, err := ParseConfig([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Configuration {
	return &Configuration{
		Engine: EngineConfiguration{
			MaxSlots:            64,
			RingCapacity:        32,
			MaxTrackedTables:    256,
			HeartbeatIntervalMS: 1000,
			StaleTimeoutSeconds: 300,
			AnalyzerCacheSize:   1024,
		},
		Logging: LoggingConfiguration{Format: "console"},
		Admin:   AdminConfiguration{Enabled: true, Port: 7777},
		HostDB:  HostDBConfiguration{Path: "./pg_subscribe.db"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	require.NoError(t, Validate())
}

func TestValidate_InvalidMaxSlots(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Engine.MaxSlots = 0
	require.Error(t, Validate())
}

func TestValidate_InvalidHeartbeat(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	for _, ms := range []int{0, 49, 60001} {
		Config = validConfig()
		Config.Engine.HeartbeatIntervalMS = ms
		require.Error(t, Validate(), "heartbeat_interval_ms=%d should be rejected", ms)
	}
}

func TestValidate_InvalidAdminPort(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Admin.Port = -1
	require.Error(t, Validate())
}

func TestValidate_DisabledAdminSkipsPortCheck(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Admin.Enabled = false
	Config.Admin.Port = -1
	require.NoError(t, Validate())
}

func TestValidate_InvalidLoggingFormat(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.Logging.Format = "xml"
	require.Error(t, Validate())
}

func TestValidate_EmptyHostDBPath(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	Config.HostDB.Path = ""
	require.Error(t, Validate())
}

func TestLoad_NonExistentFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	Config = validConfig()
	err := Load("non-existent-file.toml")
	require.NoError(t, err)
}

func TestLoad_DecodesFile(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[engine]
max_slots = 128
heartbeat_interval_ms = 500

[admin]
enabled = true
port = 9001
`), 0644))

	Config = validConfig()
	require.NoError(t, Load(path))

	require.Equal(t, 128, Config.Engine.MaxSlots)
	require.Equal(t, 500, Config.Engine.HeartbeatIntervalMS)
	require.Equal(t, 9001, Config.Admin.Port)
}

func TestLoad_CLIOverride(t *testing.T) {
	original := Config
	defer func() { Config = original }()

	*AdminPortFlag = 9999
	*HostDBPathFlag = "/tmp/override.db"
	defer func() {
		*AdminPortFlag = 0
		*HostDBPathFlag = ""
	}()

	Config = validConfig()
	require.NoError(t, Load(""))

	require.Equal(t, 9999, Config.Admin.Port)
	require.Equal(t, "/tmp/override.db", Config.HostDB.Path)
}

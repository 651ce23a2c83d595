package tdsim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig(5)
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := &Config{
		N:                         0,
		Root:                      9,
		InitialLiveness:           []int{1},
		MinActivenessAfterReceive: 5,
		MaxActivenessAfterReceive: 2,
		NodePackageProcessPerTick: 0,
		PassivenessDeathThresh:    -1,
		SimulationTicks:           0,
		CommunicationOnActiveProb: 2.5,
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"n must be positive", "root", "initial_liveness", "min_activeness_after_receive", "node_package_process_per_tick", "passiveness_death_thresh", "simulation_ticks", "communication_on_active_prob"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_RejectsBadAddressSpace(t *testing.T) {
	cfg := DefaultConfig(3)
	cfg.AddressSpace = "not-a-cidr"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address_space")
}

func TestInitialLivenessFor_OnlyRootAliveInitially(t *testing.T) {
	cfg := DefaultConfig(3)
	cfg.OnlyRootAliveInitially = true
	cfg.Root = 1
	assert.Equal(t, 0, cfg.initialLivenessFor(0))
	assert.Equal(t, DefaultRootBootstrapLiveness, cfg.initialLivenessFor(1))
	assert.Equal(t, 0, cfg.initialLivenessFor(2))
}

func TestInitialLivenessFor_RootBootstrapsWhenConfiguredZero(t *testing.T) {
	cfg := DefaultConfig(3)
	cfg.OnlyRootAliveInitially = false
	cfg.InitialLiveness = []int{0, 4, 0}
	assert.Equal(t, DefaultRootBootstrapLiveness, cfg.initialLivenessFor(0))
	assert.Equal(t, 4, cfg.initialLivenessFor(1))
	assert.Equal(t, 0, cfg.initialLivenessFor(2))
}

func TestHardStopFor_DefaultsToNoHardStop(t *testing.T) {
	cfg := DefaultConfig(2)
	assert.Equal(t, NoHardStop, cfg.hardStopFor(0))
	assert.Equal(t, NoHardStop, cfg.hardStopFor(1))
}

func TestLoadConfig_ParsesDocumentAndFillsHardStopDefaults(t *testing.T) {
	doc := map[string]interface{}{
		"n":                             4,
		"root":                          0,
		"simulation_ticks":              100,
		"initial_liveness":              []int{10, 0, 0, 0},
		"communication_on_active_prob":  0.5,
		"min_activeness_after_receive":  1,
		"max_activeness_after_receive":  3,
		"node_package_process_per_tick": 1,
		"passiveness_death_thresh":      4,
		"hard_stop_on_tick":             map[string]int64{"2": 50},
		"only_root_alive_initially":     true,
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.N)
	require.Len(t, cfg.HardStopOnTick, 4)
	assert.Equal(t, NoHardStop, cfg.HardStopOnTick[0])
	assert.Equal(t, NoHardStop, cfg.HardStopOnTick[1])
	assert.Equal(t, int64(50), cfg.HardStopOnTick[2])
	assert.Equal(t, NoHardStop, cfg.HardStopOnTick[3])
}

func TestLoadConfig_RejectsOutOfRangeHardStopKey(t *testing.T) {
	doc := map[string]interface{}{
		"n":                             2,
		"root":                          0,
		"simulation_ticks":              100,
		"initial_liveness":              []int{10, 0},
		"communication_on_active_prob":  0.5,
		"min_activeness_after_receive":  1,
		"max_activeness_after_receive":  3,
		"node_package_process_per_tick": 1,
		"passiveness_death_thresh":      4,
		"hard_stop_on_tick":             map[string]int64{"7": 50},
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hard_stop_on_tick key 7 out of range")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

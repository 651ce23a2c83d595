package tdsim

import (
	"encoding/json"
	"math"
	"os"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
)

// NodeID identifies a node in [0, N).
type NodeID int

// NoHardStop is the sentinel standing in for "this node has no scheduled
// hard stop". The design notes call this out explicitly: the tick
// predicate compares tick_n >= hard_stop_on_tick[node_id] unconditionally,
// so absence has to be an ordinary (very large) integer rather than an
// optional that the comparison would have to special-case or that would
// panic if dereferenced blindly.
const NoHardStop int64 = math.MaxInt64

// DefaultRootBootstrapLiveness is applied when the root would otherwise
// start with zero liveness (either because only_root_alive_initially is
// set, or because initial_liveness[root] is zero). Without it the
// diffusing computation never starts: the root has to live long enough
// to send at least one basic message.
const DefaultRootBootstrapLiveness = 20

// Config is the fully validated, typed simulation configuration. Build
// one directly for tests, or call LoadConfig to read it from a JSON file.
type Config struct {
	N    int
	Root NodeID

	MsPerTick                 int
	SimulationTicks           int
	InitialLiveness           []int
	CommunicationOnActiveProb float64
	MinActivenessAfterReceive int
	MaxActivenessAfterReceive int
	NodePackageProcessPerTick int
	PassivenessDeathThresh    int
	HardStopOnTick            []int64
	OnlyRootAliveInitially    bool
	AddressSpace              string
	RNGSeed                   *int64
}

// rawConfig mirrors the on-disk document shape: snake_case keys,
// hard_stop_on_tick keyed by node id with absent entries meaning
// "never".
type rawConfig struct {
	N                         int            `mapstructure:"n"`
	Root                      int            `mapstructure:"root"`
	MsPerTick                 int            `mapstructure:"ms_per_tick"`
	SimulationTicks           int            `mapstructure:"simulation_ticks"`
	InitialLiveness           []int          `mapstructure:"initial_liveness"`
	CommunicationOnActiveProb float64        `mapstructure:"communication_on_active_prob"`
	MinActivenessAfterReceive int            `mapstructure:"min_activeness_after_receive"`
	MaxActivenessAfterReceive int            `mapstructure:"max_activeness_after_receive"`
	NodePackageProcessPerTick int            `mapstructure:"node_package_process_per_tick"`
	PassivenessDeathThresh    int            `mapstructure:"passiveness_death_thresh"`
	HardStopOnTick            map[int]int64  `mapstructure:"hard_stop_on_tick"`
	OnlyRootAliveInitially    bool           `mapstructure:"only_root_alive_initially"`
	AddressSpace              string         `mapstructure:"address_space"`
	RNGSeed                   *int64         `mapstructure:"rng_seed"`
}

// LoadConfig reads a JSON document from path and decodes it into a Config.
// The document is decoded in two steps — JSON into a generic map, then
// mapstructure into the raw shape — so a document with unknown or
// future-added fields doesn't fail to load; it only fails Validate if
// what it does specify is inconsistent.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	var raw rawConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, err
	}

	cfg := &Config{
		N:                         raw.N,
		Root:                      NodeID(raw.Root),
		MsPerTick:                 raw.MsPerTick,
		SimulationTicks:           raw.SimulationTicks,
		InitialLiveness:           raw.InitialLiveness,
		CommunicationOnActiveProb: raw.CommunicationOnActiveProb,
		MinActivenessAfterReceive: raw.MinActivenessAfterReceive,
		MaxActivenessAfterReceive: raw.MaxActivenessAfterReceive,
		NodePackageProcessPerTick: raw.NodePackageProcessPerTick,
		PassivenessDeathThresh:    raw.PassivenessDeathThresh,
		OnlyRootAliveInitially:    raw.OnlyRootAliveInitially,
		AddressSpace:              raw.AddressSpace,
		RNGSeed:                   raw.RNGSeed,
	}

	cfg.HardStopOnTick = make([]int64, cfg.N)
	for i := range cfg.HardStopOnTick {
		cfg.HardStopOnTick[i] = NoHardStop
	}

	v := &validationErrors{}
	for id, tick := range raw.HardStopOnTick {
		if id < 0 || id >= cfg.N {
			v.add("hard_stop_on_tick key %d out of range [0, %d)", id, cfg.N)
			continue
		}
		cfg.HardStopOnTick[id] = tick
	}

	if err := cfg.Validate(); err != nil {
		v.errs = multierror.Append(v.errs, err)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects an inconsistent configuration before the first tick,
// collecting every problem it finds instead of stopping at the first.
func (c *Config) Validate() error {
	v := &validationErrors{}

	if c.N <= 0 {
		v.add("n must be positive, got %d", c.N)
	}
	if c.Root < 0 || int(c.Root) >= c.N {
		v.add("root %d out of range [0, %d)", c.Root, c.N)
	}
	if len(c.InitialLiveness) != c.N {
		v.add("initial_liveness has %d entries, want %d", len(c.InitialLiveness), c.N)
	}
	if c.HardStopOnTick != nil && len(c.HardStopOnTick) != c.N {
		v.add("hard_stop_on_tick has %d entries, want %d", len(c.HardStopOnTick), c.N)
	}
	if c.MinActivenessAfterReceive > c.MaxActivenessAfterReceive {
		v.add("min_activeness_after_receive (%d) > max_activeness_after_receive (%d)",
			c.MinActivenessAfterReceive, c.MaxActivenessAfterReceive)
	}
	if c.MinActivenessAfterReceive < 0 || c.MaxActivenessAfterReceive < 0 {
		v.add("activeness bounds must be non-negative")
	}
	if c.NodePackageProcessPerTick <= 0 {
		v.add("node_package_process_per_tick must be positive, got %d", c.NodePackageProcessPerTick)
	}
	if c.PassivenessDeathThresh < 0 {
		v.add("passiveness_death_thresh must be non-negative, got %d", c.PassivenessDeathThresh)
	}
	if c.SimulationTicks <= 0 {
		v.add("simulation_ticks must be positive, got %d", c.SimulationTicks)
	}
	if c.CommunicationOnActiveProb < 0 || c.CommunicationOnActiveProb > 1 {
		v.add("communication_on_active_prob must be in [0, 1], got %f", c.CommunicationOnActiveProb)
	}
	for i, stop := range c.HardStopOnTick {
		if stop < 0 {
			v.add("hard_stop_on_tick[%d] must be non-negative or absent, got %d", i, stop)
		}
	}
	if c.AddressSpace != "" {
		if _, err := parseAddressSpace(c.AddressSpace); err != nil {
			v.add("address_space %q is not a valid CIDR: %v", c.AddressSpace, err)
		}
	}

	return v.err()
}

// initialLivenessFor returns the starting alive_for_next_ticks for node
// id, applying the only_root_alive_initially rule and the root bootstrap
// described in DefaultRootBootstrapLiveness.
func (c *Config) initialLivenessFor(id NodeID) int {
	isRoot := id == c.Root
	liveness := 0
	if int(id) < len(c.InitialLiveness) {
		liveness = c.InitialLiveness[id]
	}

	if c.OnlyRootAliveInitially {
		if isRoot {
			return DefaultRootBootstrapLiveness
		}
		return 0
	}

	if isRoot && liveness == 0 {
		return DefaultRootBootstrapLiveness
	}
	return liveness
}

func (c *Config) hardStopFor(id NodeID) int64 {
	if int(id) < len(c.HardStopOnTick) {
		return c.HardStopOnTick[id]
	}
	return NoHardStop
}

// DefaultConfig returns a small, valid, ready-to-run configuration for n
// nodes rooted at node 0 — used by the CLI when no -config file is given
// and by tests that don't care about exact parameter tuning.
func DefaultConfig(n int) *Config {
	initial := make([]int, n)
	hardStop := make([]int64, n)
	for i := range hardStop {
		hardStop[i] = NoHardStop
	}

	cfg := &Config{
		N:                         n,
		Root:                      0,
		MsPerTick:                 0,
		SimulationTicks:           200,
		InitialLiveness:           initial,
		CommunicationOnActiveProb: 0.6,
		MinActivenessAfterReceive: 2,
		MaxActivenessAfterReceive: 6,
		NodePackageProcessPerTick: 1,
		PassivenessDeathThresh:    5,
		HardStopOnTick:            hardStop,
		OnlyRootAliveInitially:    true,
	}
	return cfg
}

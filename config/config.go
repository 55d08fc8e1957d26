package config

import (
	"fmt"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/mpn-executor/types"
)

// EnvPrefix is the prefix of the environment variables overriding flags,
// e.g. MPNEXEC_NODE or MPNEXEC_MINER_TOKEN.
const EnvPrefix = "MPNEXEC"

const (
	DefaultNode          = "127.0.0.1:8765"
	DefaultListen        = "0.0.0.0:8767"
	DefaultDBType        = "pebble"
	DefaultPollInterval  = time.Second
	DefaultWatchInterval = 2 * time.Second
	DefaultRetryDelay    = time.Second
	DefaultParamsDir     = "params"
	DefaultFeeToken      = uint64(types.NativeToken)
	DefaultPersistDeltas = true
	DefaultNodeRetries   = 3
)

// Config is the runtime configuration of the executor.
type Config struct {
	ConfigFile    string        `mapstructure:"config"`
	Node          string        `mapstructure:"node"`
	NodeRetries   int           `mapstructure:"node-retries"`
	MinerToken    string        `mapstructure:"miner-token"`
	Seed          string        `mapstructure:"seed"`
	ContractID    string        `mapstructure:"contract-id"`
	FeeToken      uint64        `mapstructure:"fee-token"`
	DBType        string        `mapstructure:"db-type"`
	DataDir       string        `mapstructure:"datadir"`
	ParamsDir     string        `mapstructure:"params-dir"`
	ParamsURL     string        `mapstructure:"params-url"`
	DepositHash   string        `mapstructure:"deposit-params-hash"`
	WithdrawHash  string        `mapstructure:"withdraw-params-hash"`
	UpdateHash    string        `mapstructure:"update-params-hash"`
	DepositBatch  int           `mapstructure:"deposit-batches"`
	WithdrawBatch int           `mapstructure:"withdraw-batches"`
	UpdateBatch   int           `mapstructure:"update-batches"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	WatchInterval time.Duration `mapstructure:"watch-interval"`
	RetryDelay    time.Duration `mapstructure:"retry-delay"`
	Listen        string        `mapstructure:"listen"`
	LogLevel      string        `mapstructure:"log-level"`
	LogOutput     string        `mapstructure:"log-output"`
	PersistDeltas bool          `mapstructure:"persist-deltas"`

	// Sizes is not configurable at runtime: it must match the parameters.
	Sizes Sizes `mapstructure:"-"`
}

// Flags returns the flag set shared by every subcommand.
func Flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "optional configuration file (yaml, toml or json)")
	fs.String("node", DefaultNode, "host chain node address")
	fs.Int("node-retries", DefaultNodeRetries, "retries of a failed host node request")
	fs.String("miner-token", "", "miner token sent to the host node")
	fs.String("seed", "", "seed of the executor signing key")
	fs.String("contract-id", "", "hex id of the payment network contract")
	fs.Uint64("fee-token", DefaultFeeToken, "token in which transfer fees are collected")
	fs.String("db-type", DefaultDBType, "state database type")
	fs.String("datadir", "", "state database directory")
	fs.String("params-dir", DefaultParamsDir, "directory of the proving parameters")
	fs.String("params-url", "", "base URL to download missing proving parameters from")
	fs.String("deposit-params-hash", "", "expected sha256 of the deposit parameters")
	fs.String("withdraw-params-hash", "", "expected sha256 of the withdraw parameters")
	fs.String("update-params-hash", "", "expected sha256 of the update parameters")
	fs.Int("deposit-batches", 1, "deposit batches per round")
	fs.Int("withdraw-batches", 1, "withdraw batches per round")
	fs.Int("update-batches", 1, "update batches per round")
	fs.Duration("poll-interval", DefaultPollInterval, "delay between rounds")
	fs.Duration("watch-interval", DefaultWatchInterval, "height polling interval while proving")
	fs.Duration("retry-delay", DefaultRetryDelay, "delay after a skipped or failed round")
	fs.String("listen", DefaultListen, "status server listen address")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-output", "stdout", "log output (stdout, stderr or file path)")
	fs.Bool("persist-deltas", DefaultPersistDeltas, "apply submitted deltas to the local state database")
	return fs
}

// Load parses args with the given flag set and merges environment variables
// and the optional configuration file into a Config.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Sizes = DefaultSizes()
	return cfg, nil
}

// BatchCount returns the number of batches of the kind run per round.
func (c *Config) BatchCount(kind types.Kind) int {
	switch kind {
	case types.KindDeposit:
		return c.DepositBatch
	case types.KindWithdraw:
		return c.WithdrawBatch
	default:
		return c.UpdateBatch
	}
}

// ParamsHash returns the expected sha256 of the kind parameters, if any.
func (c *Config) ParamsHash(kind types.Kind) string {
	switch kind {
	case types.KindDeposit:
		return c.DepositHash
	case types.KindWithdraw:
		return c.WithdrawHash
	default:
		return c.UpdateHash
	}
}

// Validate checks the fields required to run rounds.
func (c *Config) Validate() error {
	if c.Seed == "" {
		return fmt.Errorf("seed is required")
	}
	if c.ContractID == "" {
		return fmt.Errorf("contract id is required")
	}
	if _, err := types.HexStringToHexBytes(c.ContractID); err != nil {
		return fmt.Errorf("invalid contract id: %w", err)
	}
	for _, k := range types.Kinds {
		if c.BatchCount(k) < 0 {
			return fmt.Errorf("negative %s batch count", k)
		}
	}
	if c.NodeRetries < 0 {
		return fmt.Errorf("negative node retries")
	}
	if c.DataDir == "" && !c.PersistDeltas {
		return fmt.Errorf("persist-deltas is required with an in-memory database")
	}
	if c.WatchInterval <= 0 || c.RetryDelay <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return c.Sizes.Validate()
}

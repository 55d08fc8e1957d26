package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/mpn-executor/types"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := Load(Flags("test"), []string{"--seed", "abc", "--contract-id", "0x0102"})
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Node, qt.Equals, DefaultNode)
	c.Assert(cfg.Listen, qt.Equals, DefaultListen)
	c.Assert(cfg.WatchInterval, qt.Equals, DefaultWatchInterval)
	c.Assert(cfg.FeeToken, qt.Equals, DefaultFeeToken)
	c.Assert(cfg.PersistDeltas, qt.IsTrue)
	c.Assert(cfg.NodeRetries, qt.Equals, DefaultNodeRetries)
	c.Assert(cfg.BatchCount(types.KindUpdate), qt.Equals, 1)
	c.Assert(cfg.Sizes, qt.Equals, DefaultSizes())
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestLoadEnvOverride(t *testing.T) {
	c := qt.New(t)
	t.Setenv("MPNEXEC_MINER_TOKEN", "secret")
	t.Setenv("MPNEXEC_WATCH_INTERVAL", "5s")
	t.Setenv("MPNEXEC_NODE_RETRIES", "-1")
	cfg, err := Load(Flags("test"), []string{"--deposit-batches", "3"})
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.MinerToken, qt.Equals, "secret")
	c.Assert(cfg.WatchInterval, qt.Equals, 5*time.Second)
	c.Assert(cfg.BatchCount(types.KindDeposit), qt.Equals, 3)
	c.Assert(cfg.NodeRetries, qt.Equals, -1)
	c.Assert(cfg.Validate(), qt.ErrorMatches, "seed is required")
	cfg.Seed, cfg.ContractID = "abc", "0x0102"
	c.Assert(cfg.Validate(), qt.ErrorMatches, "negative node retries")
}

func TestValidatePersistDeltas(t *testing.T) {
	c := qt.New(t)
	args := []string{"--seed", "abc", "--contract-id", "0x0102", "--persist-deltas=false"}
	cfg, err := Load(Flags("test"), args)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Validate(), qt.ErrorMatches, "persist-deltas is required .*")

	cfg, err = Load(Flags("test"), append(args, "--datadir", t.TempDir(), "--fee-token", "0"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.FeeToken, qt.Equals, uint64(0))
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestSizes(t *testing.T) {
	c := qt.New(t)
	s := TestSizes()
	c.Assert(s.Depth(), qt.Equals, 2)
	c.Assert(s.Accounts(), qt.Equals, uint64(4))
	c.Assert(s.BatchSize(types.KindUpdate), qt.Equals, 4)
	c.Assert(DefaultSizes().BatchSize(types.KindUpdate), qt.Equals, 256)
	c.Assert(Sizes{}.Validate(), qt.IsNotNil)
}

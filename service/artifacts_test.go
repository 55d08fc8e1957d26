package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/mpn-executor/circuits"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/types"
)

func TestGenerateAndLoadParams(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	c := qt.New(t)
	dir := t.TempDir()
	sizes := config.TestSizes()

	hashes, err := GenerateParams(dir, sizes)
	c.Assert(err, qt.IsNil)
	c.Assert(hashes, qt.HasLen, len(types.Kinds))

	params, err := LoadParams(ParamsSource{Dir: dir, Hashes: hashes}, sizes, time.Minute)
	c.Assert(err, qt.IsNil)
	for _, kind := range types.Kinds {
		c.Assert(params[kind].Kind, qt.Equals, kind)
	}
	all := make([]*prover.Params, 0, len(params))
	for _, p := range params {
		all = append(all, p)
	}
	engine, err := prover.New(all...)
	c.Assert(err, qt.IsNil)
	c.Assert(engine.Sizes(), qt.Equals, sizes)

	// sizes must match the blobs
	_, err = LoadParams(ParamsSource{Dir: dir}, config.DefaultSizes(), time.Minute)
	c.Assert(err, qt.ErrorIs, prover.ErrParamsMismatch)

	// a wrong hash is rejected
	bad := map[types.Kind]string{types.KindDeposit: hashes[types.KindUpdate]}
	_, err = LoadParams(ParamsSource{Dir: dir, Hashes: bad}, sizes, time.Minute)
	c.Assert(err, qt.ErrorMatches, ".*hash mismatch.*")

	// missing blobs without a remote URL
	c.Assert(os.Remove(filepath.Join(dir, circuits.ParamsFileName(types.KindWithdraw))), qt.IsNil)
	_, err = LoadParams(ParamsSource{Dir: dir}, sizes, time.Minute)
	c.Assert(err, qt.ErrorMatches, ".*not found.*")
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vocdoni/mpn-executor/circuits"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/types"
	"golang.org/x/sync/errgroup"
)

// ParamsSource locates the proving parameters of every kind.
type ParamsSource struct {
	Dir     string
	BaseURL string
	// Hashes holds the optional expected sha256 of each kind blob.
	Hashes map[types.Kind]string
}

// LoadParams loads the proving parameters of every kind concurrently,
// downloading the missing ones when a base URL is set. Every blob must have
// been generated for sizes.
func LoadParams(src ParamsSource, sizes config.Sizes, timeout time.Duration) (map[types.Kind]*prover.Params, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	loaded := make([]*prover.Params, len(types.Kinds))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range types.Kinds {
		g.Go(func() error {
			artifact, err := circuits.NewParamsArtifact(kind, src.Dir, src.BaseURL, src.Hashes[kind])
			if err != nil {
				return err
			}
			if err := artifact.Load(ctx); err != nil {
				return fmt.Errorf("failed to load %s params: %w", kind, err)
			}
			params, err := prover.Unmarshal(artifact.Content)
			if err != nil {
				return fmt.Errorf("%s: %w", artifact.Path(), err)
			}
			if err := params.Check(kind, sizes); err != nil {
				return fmt.Errorf("%s: %w", artifact.Path(), err)
			}
			fp, err := params.VKFingerprint()
			if err != nil {
				return err
			}
			log.Infow("proving parameters loaded", "kind", kind.String(),
				"path", artifact.Path(), "sha256", artifact.Sha256(), "vk", fp)
			loaded[i] = params
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[types.Kind]*prover.Params, len(loaded))
	for i, kind := range types.Kinds {
		out[kind] = loaded[i]
	}
	return out, nil
}

// GenerateParams runs the setup of every kind for sizes and stores the blobs
// in dir. It returns the sha256 of each stored blob.
func GenerateParams(dir string, sizes config.Sizes) (map[types.Kind]string, error) {
	hashes := make(map[types.Kind]string, len(types.Kinds))
	for _, kind := range types.Kinds {
		startTime := time.Now()
		params, err := prover.Setup(kind, sizes)
		if err != nil {
			return nil, err
		}
		blob, err := params.Marshal()
		if err != nil {
			return nil, err
		}
		artifact, err := circuits.NewParamsArtifact(kind, dir, "", "")
		if err != nil {
			return nil, err
		}
		if err := artifact.Store(blob); err != nil {
			return nil, err
		}
		fp, err := params.VKFingerprint()
		if err != nil {
			return nil, err
		}
		hashes[kind] = artifact.Sha256()
		log.Infow("proving parameters generated", "kind", kind.String(), "path", artifact.Path(),
			"sha256", hashes[kind], "vk", fp, "took", time.Since(startTime).String())
	}
	return hashes, nil
}

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/mpn-executor/api"
	"github.com/vocdoni/mpn-executor/chain"
	"github.com/vocdoni/mpn-executor/config"
	"github.com/vocdoni/mpn-executor/crypto/ethereum"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/prover"
	"github.com/vocdoni/mpn-executor/sequencer"
	"github.com/vocdoni/mpn-executor/service"
	"github.com/vocdoni/mpn-executor/storage"
	"github.com/vocdoni/mpn-executor/types"
)

const paramsLoadTimeout = 30 * time.Minute

const usage = `usage: mpn-executor <command> [flags]

commands:
  start            run the executor rounds and the status server
  serve            run the status server only
  generate-params  run the setup of every circuit and store the parameters
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	fs := config.Flags(cmd)
	cfg, err := config.Load(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s", err, usage)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel, cfg.LogOutput, nil)

	switch cmd {
	case "start":
		err = start(cfg)
	case "serve":
		err = serve(cfg)
	case "generate-params":
		err = generateParams(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// openStorage opens the database at the data directory, or an in-memory one
// when no directory is configured.
func openStorage(cfg *config.Config) (*storage.Storage, error) {
	if cfg.DataDir == "" {
		log.Warnw("no datadir configured, using an in-memory database")
		return storage.New(memdb.New()), nil
	}
	return storage.Open(cfg.DBType, cfg.DataDir)
}

func listenHostPort(listen string) (string, int, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen port %q: %w", port, err)
	}
	return host, p, nil
}

func start(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	contractID, err := types.HexStringToHexBytes(cfg.ContractID)
	if err != nil {
		return err
	}
	signer := ethereum.NewSignKeys()
	if err := signer.AddSeed([]byte(cfg.Seed)); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	src := service.ParamsSource{
		Dir:     cfg.ParamsDir,
		BaseURL: cfg.ParamsURL,
		Hashes:  make(map[types.Kind]string, len(types.Kinds)),
	}
	for _, kind := range types.Kinds {
		src.Hashes[kind] = cfg.ParamsHash(kind)
	}
	params, err := service.LoadParams(src, cfg.Sizes, paramsLoadTimeout)
	if err != nil {
		return err
	}
	info := &api.ExecutorInfo{
		Executor:   signer.AddressString(),
		ContractID: contractID,
		Sizes:      &cfg.Sizes,
		VKeys:      make(map[string]string, len(params)),
	}
	all := make([]*prover.Params, 0, len(params))
	for _, kind := range types.Kinds {
		fp, err := params[kind].VKFingerprint()
		if err != nil {
			return err
		}
		info.VKeys[kind.String()] = fp
		all = append(all, params[kind])
	}
	engine, err := prover.New(all...)
	if err != nil {
		return err
	}

	stg, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer stg.Close()
	st, err := stg.State(cfg.Sizes)
	if err != nil {
		return err
	}
	node, err := chain.New(cfg.Node, cfg.MinerToken)
	if err != nil {
		return err
	}
	node.SetRetries(cfg.NodeRetries)

	batches := make(map[types.Kind]int, len(types.Kinds))
	for _, kind := range types.Kinds {
		batches[kind] = cfg.BatchCount(kind)
	}
	seq, err := service.NewSequencer(sequencer.Options{
		Node:          node,
		Engine:        engine,
		State:         st,
		Storage:       stg,
		Signer:        signer,
		ContractID:    contractID,
		FeeToken:      types.TokenID(cfg.FeeToken),
		Batches:       batches,
		PersistDeltas: cfg.PersistDeltas,
		PollInterval:  cfg.PollInterval,
		WatchInterval: cfg.WatchInterval,
		RetryDelay:    cfg.RetryDelay,
	})
	if err != nil {
		return err
	}

	host, port, err := listenHostPort(cfg.Listen)
	if err != nil {
		return err
	}
	apiSrv := service.NewAPI(stg, info, host, port)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := apiSrv.Start(ctx); err != nil {
		return err
	}
	defer apiSrv.Stop()
	if err := seq.Start(ctx); err != nil {
		return err
	}
	defer seq.Stop()

	log.Infow("executor running", "executor", info.Executor, "node", cfg.Node, "listen", cfg.Listen)
	waitForSignal()
	return nil
}

func serve(cfg *config.Config) error {
	var stg *storage.Storage
	if cfg.DataDir != "" {
		var err error
		if stg, err = storage.Open(cfg.DBType, cfg.DataDir); err != nil {
			return err
		}
		defer stg.Close()
	}
	host, port, err := listenHostPort(cfg.Listen)
	if err != nil {
		return err
	}
	apiSrv := service.NewAPI(stg, &api.ExecutorInfo{Sizes: &cfg.Sizes}, host, port)
	if err := apiSrv.Start(context.Background()); err != nil {
		return err
	}
	defer apiSrv.Stop()
	waitForSignal()
	return nil
}

func generateParams(cfg *config.Config) error {
	if err := cfg.Sizes.Validate(); err != nil {
		return err
	}
	log.Infow("generating proving parameters", "dir", cfg.ParamsDir, "sizes", fmt.Sprintf("%+v", cfg.Sizes))
	hashes, err := service.GenerateParams(cfg.ParamsDir, cfg.Sizes)
	if err != nil {
		return err
	}
	for _, kind := range types.Kinds {
		fmt.Printf("%s-params-hash: %s\n", kind, hashes[kind])
	}
	return nil
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	log.Warnw("received signal, shutting down", "signal", sig.String())
}

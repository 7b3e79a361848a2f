package main

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/fractalmind-ai/matchvec/internal/config"
	"github.com/fractalmind-ai/matchvec/internal/field"
	"github.com/fractalmind-ai/matchvec/internal/vectors"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	cacheDir   string
	verbose    bool

	out    io.Writer
	errOut io.Writer
	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "matchvec",
		Short:         "Download, cache and attach word vectors to entity-matching fields",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "./config.yaml", "path to config file")
	flags.StringVar(&a.cacheDir, "cache-dir", "", "vector cache directory (overrides config)")
	flags.BoolVar(&a.verbose, "verbose", false, "enable verbose logging")

	root.AddCommand(newFetchCmd(a), newLookupCmd(a), newVocabCmd(a))
	return root
}

func (a *app) init() error {
	flags := log.LstdFlags
	if a.verbose {
		flags |= log.Lshortfile
	}
	a.logger = log.New(a.errOut, "", flags)

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.cacheDir != "" {
		cfg.Cache.Dir = a.cacheDir
	}
	a.cfg = cfg
	return nil
}

func (a *app) newCache() (*vectors.Cache, error) {
	dir, err := vectors.ResolveCacheDir(a.cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	m := &vectors.Materializer{
		Fetcher:     vectors.Fetcher{Logger: a.logger},
		LockTimeout: time.Duration(a.cfg.Cache.LockTimeoutSeconds) * time.Second,
	}
	if a.cfg.Cache.Progress {
		m.Progress = a.errOut
	}
	loader := vectors.NewLoader(m)
	loader.Sources = a.cfg.VectorSources()
	loader.SubwordMemoSize = a.cfg.Cache.SubwordMemoSize
	if a.verbose {
		a.logger.Printf("vectors: cache dir %s", dir)
	}
	return vectors.NewCache(loader, dir), nil
}

func (a *app) fieldConfig() field.Config {
	fc := field.DefaultConfig()
	fc.Lower = a.cfg.Field.Lower
	fc.InitToken = a.cfg.Field.InitToken
	fc.EOSToken = a.cfg.Field.EOSToken
	fc.FixLength = a.cfg.Field.FixLength
	fc.Tokenizer = a.cfg.Field.Tokenizer
	return fc
}

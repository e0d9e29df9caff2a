package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andreyvit/stablestore"
	"github.com/andreyvit/stablestore/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	InMemory   bool
	LogLevel   string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the agroledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agroledger",
		Short: "Debts, escrows, crop insurance and claims in a durable local store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "store file (overrides db_path)")
	cmd.PersistentFlags().BoolVar(&opts.InMemory, "in-memory", false, "use a transient in-memory store")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides log_level)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every storage write")

	cmd.AddCommand(newDebtCommands(opts)...)
	cmd.AddCommand(newEscrowCommands(opts)...)
	cmd.AddCommand(newInsuranceCommands(opts)...)
	cmd.AddCommand(newDumpCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))

	return cmd
}

func (opts *RootOptions) resolveConfig(cmd *cobra.Command) (Config, error) {
	cfg := DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = LoadConfig(opts.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = opts.DBPath
	}
	if flags.Changed("in-memory") {
		cfg.InMemory = opts.InMemory
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.Verbose
	}
	return cfg, cfg.Validate()
}

// app is the state shared by one command invocation: the open store and the
// ledger attached to it.
type app struct {
	logger *zap.Logger
	mm     *stablestore.MemoryManager
	ledger *ledger.Ledger
	out    *OutputFormatter
}

func (opts *RootOptions) openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "invalid configuration", Err: err}
	}
	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "configuring logging", Err: err}
	}

	sopt := stablestore.Options{
		Logger:         logger,
		Verbose:        cfg.Verbose,
		MmapSize:       cfg.MmapSize,
		MaxRegionPages: cfg.MaxRegionPages,
	}
	var mm *stablestore.MemoryManager
	if cfg.InMemory {
		mm, err = stablestore.OpenInMemory(sopt)
	} else {
		mm, err = stablestore.Open(cfg.DBPath, sopt)
	}
	if err != nil {
		logger.Error("cannot open store", zap.Error(err))
		return nil, &ExitError{Code: ExitCommandError, Message: "opening store", Err: err}
	}

	l, err := ledger.New(mm, ledger.Options{Logger: logger})
	if err != nil {
		mm.Close()
		return nil, &ExitError{Code: ExitCommandError, Message: "opening ledger", Err: err}
	}
	return &app{
		logger: logger,
		mm:     mm,
		ledger: l,
		out:    &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (a *app) Close() {
	if err := a.mm.Close(); err != nil {
		a.logger.Error("closing store", zap.Error(err))
	}
	a.logger.Sync()
}

// run opens the store, performs op and writes its result.
func (opts *RootOptions) run(cmd *cobra.Command, op func(a *app) (any, error)) error {
	a, err := opts.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := op(a)
	if err != nil {
		return a.out.report(err)
	}
	if err := a.out.Success(result); err != nil {
		return &ExitError{Code: ExitCommandError, Message: "writing output", Err: err}
	}
	return nil
}

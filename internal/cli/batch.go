package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/ctxutil"
	"github.com/example/certs/internal/ports/secondary"
	"github.com/example/certs/internal/wire"
)

const argsFromDatabaseFlag = "args-from-database"

// commandContext tags certificate history written by a command with its
// name and the operator from CERTS_ACTOR.
func commandContext(name string) context.Context {
	ctx := ctxutil.WithSource(context.Background(), "cli:"+name)
	if actor := os.Getenv("CERTS_ACTOR"); actor != "" {
		ctx = ctxutil.WithActorID(ctx, actor)
	}
	return ctx
}

// batchCommand describes an administrative command whose arguments may come
// from the command line or from its configuration row.
type batchCommand[T any] struct {
	use        string
	short      string
	long       string
	configName string
	listFlags  []string // Flags taking several space separated values
	bind       func(fs *pflag.FlagSet, opts *T)
	run        func(ctx context.Context, cmd *cobra.Command, opts *T) error
}

func (b batchCommand[T]) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   b.use,
		Short: b.short,
		Long:  b.long,
		// Flags are parsed by parse so that list flags and database arguments
		// share one code path.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantsHelp(args) {
				return cmd.Help()
			}
			ctx := commandContext(b.use)
			opts, err := b.parse(ctx, wire.CommandConfigs, args)
			if err != nil {
				return err
			}
			return b.run(ctx, cmd, opts)
		},
	}

	var display T
	b.bind(cmd.Flags(), &display)
	cmd.Flags().Bool(argsFromDatabaseFlag, false, fmt.Sprintf("Use arguments stored in %s", b.configName))
	return cmd
}

// parse reads options from args, or from the configuration row when
// --args-from-database is given, and validates them.
func (b batchCommand[T]) parse(ctx context.Context, configs func() secondary.CommandConfigRepository, args []string) (*T, error) {
	opts, fromDB, err := b.parseTokens(args, true)
	if err != nil {
		return nil, err
	}

	if fromDB {
		tokens, err := cmdargs.FromDatabase(ctx, configs(), b.configName)
		if err != nil {
			return nil, err
		}
		if opts, _, err = b.parseTokens(tokens, false); err != nil {
			return nil, err
		}
	}

	if err := cmdargs.Validate(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func (b batchCommand[T]) parseTokens(tokens []string, allowFromDB bool) (*T, bool, error) {
	opts := new(T)
	fs := pflag.NewFlagSet(b.use, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	b.bind(fs, opts)
	fromDB := false
	if allowFromDB {
		fs.BoolVar(&fromDB, argsFromDatabaseFlag, false, "")
	}

	if err := fs.Parse(expandListFlags(tokens, b.listFlags)); err != nil {
		return nil, false, &cmdargs.ConfigError{Msg: "invalid arguments", Err: err}
	}
	if fs.NArg() > 0 {
		return nil, false, cmdargs.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, fromDB, nil
}

// expandListFlags rewrites "--user 1 2 3" as "--user 1 --user 2 --user 3".
func expandListFlags(tokens []string, listFlags []string) []string {
	if len(listFlags) == 0 {
		return tokens
	}
	lists := make(map[string]bool, len(listFlags))
	for _, f := range listFlags {
		lists["--"+f] = true
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !lists[tok] {
			out = append(out, tok)
			continue
		}
		j := i + 1
		for ; j < len(tokens) && !strings.HasPrefix(tokens[j], "-"); j++ {
			out = append(out, tok, tokens[j])
		}
		if j == i+1 {
			// No values; let the flag parser report it.
			out = append(out, tok)
		}
		i = j - 1
	}
	return out
}

func wantsHelp(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

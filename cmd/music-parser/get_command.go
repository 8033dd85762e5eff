package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/logging"
)

type getOptions struct {
	cacheOnly bool
	bundle    bool
	title     string
	output    string
	retries   int
	retry     bool
	verbose   bool
}

func newGetCommand(ctx *commandContext) *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get [reference...]",
		Short: "Fetch songs for links or a search query",
		Long: `Fetch songs for Spotify track, album or playlist links, YouTube video
links, or a free-text search. Several links may be given at once; anything
else is joined into a single search query. Use "-" to read one reference per
line from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := collectReferences(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runGet(cmd, ctx, refs, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.cacheOnly, "cache-only", false, "Only fill the cache; deliver nothing")
	flags.BoolVar(&opts.bundle, "bundle", false, "Deliver several songs as one zip with a playlist")
	flags.StringVar(&opts.title, "title", "", "Name of the bundle archive and playlist")
	flags.StringVarP(&opts.output, "output", "o", "", "Copy delivered files into this directory")
	flags.IntVar(&opts.retries, "retries", 0, "Override download_max_retries")
	flags.BoolVar(&opts.retry, "retry", false, "Run incomplete songs once more before exiting")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose progress")

	return cmd
}

func runGet(cmd *cobra.Command, ctx *commandContext, refs []string, opts getOptions) error {
	settings, err := ctx.ensureSettings()
	if err != nil {
		return err
	}
	if opts.retries > 0 {
		settings.DownloadMaxRetries = opts.retries
	}

	out := cmd.OutOrStdout()
	sink := newConsoleSink(out, shouldColorize(out, ctx.noColor()), opts.verbose, opts.output)
	rt, err := ctx.newRuntime(sink)
	if err != nil {
		return err
	}
	defer rt.Close()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	units, err := rt.manager.Expand(runCtx, refs)
	if err != nil {
		return err
	}

	batchOpts := download.BatchOptions{
		Deliver: !opts.cacheOnly,
		Bundle:  opts.bundle,
		Title:   opts.title,
	}
	result, err := rt.manager.RunBatch(runCtx, units, batchOpts)
	if result == nil {
		return err
	}
	if err != nil {
		logging.WarnWithContext(rt.logger, "batch finished with storage error", "batch_storage_error",
			logging.String(logging.FieldBatchID, result.ID),
			logging.Error(err))
	}

	if opts.retry && len(result.Incomplete) > 0 && runCtx.Err() == nil {
		retried, retryErr := rt.manager.Retry(runCtx, result, batchOpts)
		switch {
		case errors.Is(retryErr, download.ErrNoValidInput):
		case retried != nil:
			result = retried
			err = errors.Join(err, retryErr)
		default:
			err = errors.Join(err, retryErr)
		}
	}

	if runCtx.Err() != nil {
		return runCtx.Err()
	}
	if err != nil {
		return err
	}
	if n := len(result.Incomplete); n > 0 {
		return fmt.Errorf("%d of %d song(s) incomplete", n, len(result.Units))
	}
	return nil
}

// collectReferences turns command arguments into references. Links stay
// separate; any other words form one search query.
func collectReferences(args []string, stdin io.Reader) ([]string, error) {
	if len(args) == 1 && args[0] == "-" {
		var refs []string
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				refs = append(refs, line)
			}
		}
		return refs, scanner.Err()
	}

	var refs, words []string
	for _, arg := range args {
		if isLink(arg) {
			refs = append(refs, arg)
			continue
		}
		words = append(words, arg)
	}
	if len(words) > 0 {
		refs = append(refs, strings.Join(words, " "))
	}
	return refs, nil
}

func isLink(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "spotify:")
}

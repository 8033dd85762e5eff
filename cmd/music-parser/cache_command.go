package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/storage"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the content cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanCommand(ctx))
	cacheCmd.AddCommand(newCacheResetCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached songs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			printCacheEntries(cmd.OutOrStdout(), cache.Entries())
			return nil
		},
	}
}

func printCacheEntries(out io.Writer, entries []storage.Listing) {
	rows := make([][]string, 0, len(entries))
	var total int64
	for _, e := range entries {
		size := "-"
		if e.Exists {
			size = humanize.Bytes(uint64(e.Size))
			total += e.Size
		}
		added := "-"
		if !e.Entry.Timestamp.IsZero() {
			added = humanize.Time(e.Entry.Timestamp)
		}
		rows = append(rows, []string{
			e.Key,
			e.Entry.Filename,
			size,
			added,
			strconv.FormatBool(e.Entry.Delivered),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "Cache is empty")
		return
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Key", "File", "Size", "Added", "Delivered"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "%d entries, %s on disk\n", len(rows), humanize.Bytes(uint64(total)))
}

func newCacheCleanCommand(ctx *commandContext) *cobra.Command {
	var delivered bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Evict expired entries and unindexed files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			report, err := cache.EvictExpired()
			if err != nil {
				return err
			}
			if delivered {
				more, err := cache.EvictDelivered()
				if err != nil {
					return err
				}
				report.EntriesRemoved += more.EntriesRemoved
				report.FilesRemoved += more.FilesRemoved
				report.ArchivesRemoved += more.ArchivesRemoved
			}
			if err := cache.Persist(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries, %d files, %d archives\n",
				report.EntriesRemoved, report.FilesRemoved, report.ArchivesRemoved)
			return nil
		},
	}
	cmd.Flags().BoolVar(&delivered, "delivered", false, "Also evict entries that were already delivered")
	return cmd
}

func newCacheResetCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every cached song and reset the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			cache, err := ctx.openCache(logging.NewNop())
			if err != nil {
				return err
			}
			if err := cache.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache reset")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}

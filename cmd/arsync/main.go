// Command arsync copies a local source directory tree to a local
// destination tree with faithful metadata preservation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rclone/arsync/internal/config"
	"github.com/rclone/arsync/internal/engine"
	"github.com/rclone/arsync/internal/rlog"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "arsync:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opt := config.Default()
	verbose := false

	cmd := &cobra.Command{
		Use:   "arsync source destination",
		Short: "Copy a directory tree with archive-mode metadata preservation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.Source, opt.Destination = args[0], args[1]
			if verbose {
				rlog.SetLevel(rlog.LevelDebug)
			}
			return runCopy(cmd.Context(), opt)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opt.Archive, "archive", "a", opt.Archive, "preserve ownership, permissions, and timestamps")
	flags.BoolVar(&opt.PreserveXattrs, "preserve-xattrs", false, "preserve extended attributes")
	flags.BoolVar(&opt.PreserveACL, "preserve-acl", false, "preserve POSIX ACLs")
	flags.BoolVar(&opt.PreserveHardlink, "preserve-hardlinks", false, "recreate hardlinks instead of duplicating data")
	flags.BoolVar(&opt.CopyDevices, "copy-devices", false, "recreate device, FIFO, and socket nodes")
	flags.BoolVar(&opt.OneFilesystem, "one-file-system", false, "don't cross filesystem boundaries")
	flags.BoolVar(&opt.Durable, "fsync", false, "fdatasync every file after writing")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func runCopy(ctx context.Context, opt config.Options) error {
	result, err := engine.Run(ctx, opt)
	if err != nil {
		return err
	}
	for _, e := range result.Errors.Errors() {
		rlog.Errorf(nil, "%v", e)
	}
	snap := result.Stats
	fmt.Fprintf(os.Stderr, "arsync: %d entries visited, %d linked, %d bytes written (%d sparse), %d failed\n",
		snap.EntriesVisited, snap.EntriesLinked, snap.BytesWritten, snap.BytesSparse, snap.EntriesFailed)
	if !result.Errors.Empty() {
		return fmt.Errorf("%d entries failed", result.Errors.Len())
	}
	return nil
}

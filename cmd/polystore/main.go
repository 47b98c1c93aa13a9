// Command polystore moves files between the storages declared in a
// storage map file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polystore/polystore"
	"github.com/polystore/polystore/config"
	"github.com/polystore/polystore/filter"
	"github.com/polystore/polystore/format/manifest"

	_ "github.com/polystore/polystore/backend/httpstore"
	_ "github.com/polystore/polystore/backend/local"
	_ "github.com/polystore/polystore/backend/memory"
	_ "github.com/polystore/polystore/backend/s3"
	_ "github.com/polystore/polystore/backend/ssh"
	_ "github.com/polystore/polystore/backend/swift"
)

var (
	configPath string
	verbose    bool

	filterInclude []string
	filterExclude []string
	filterFrom    string

	client *polystore.Client
)

// buildFilter assembles the transfer filter from the command-line rules.
// No rules means no filter.
func buildFilter() (*filter.Filter, error) {
	var opts []filter.Option
	for _, pattern := range filterInclude {
		opts = append(opts, filter.Include(pattern))
	}
	for _, pattern := range filterExclude {
		opts = append(opts, filter.Exclude(pattern))
	}
	if filterFrom != "" {
		opt, err := filter.FromFile(filterFrom)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	if len(opts) == 0 {
		return nil, nil
	}
	return filter.New(opts...), nil
}

var rootCmd = &cobra.Command{
	Use:   "polystore",
	Short: "Uniform file operations across heterogeneous storages",
	Long: `polystore addresses remote files as storage-id:path and routes each
operation to the matching storage from the configured storage map.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if client != nil {
			return client.Close()
		}
		return nil
	},
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := cfg.ClientOptions(logger)
	opts.Filter, err = buildFilter()
	if err != nil {
		return err
	}

	client, err = polystore.NewClient(cfg.StorageMap(), opts)
	return err
}

var storagesCmd = &cobra.Command{
	Use:   "storages",
	Short: "List the storages declared in the storage map",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range client.Storages() {
			cfg, _ := client.Describe(id)
			if cfg.Description != "" {
				fmt.Printf("%-20s %-8s %s\n", id, cfg.Type, cfg.Description)
			} else {
				fmt.Printf("%-20s %s\n", id, cfg.Type)
			}
		}
		return nil
	},
}

var (
	listRecursive bool
	listManifest  bool
)

// nopWriteCloser keeps manifest output from closing stdout.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var listCmd = &cobra.Command{
	Use:   "list <address>",
	Short: "List a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		listing, err := client.ListDir(cmd.Context(), args[0], listRecursive)
		if err != nil {
			return err
		}
		if listManifest {
			w := manifest.NewWriter(nopWriteCloser{os.Stdout})
			if err := w.WriteListing(listing); err != nil {
				return err
			}
			return w.Close()
		}
		names := make([]string, 0, len(listing))
		for name := range listing {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			stat := listing[name]
			if stat.IsDir {
				fmt.Printf("dir %s\n", name)
			} else {
				fmt.Printf("    %10d %s %s\n", stat.Size, stat.ModTime.Format("2006-01-02T15:04:05"), name)
			}
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <address> <local>",
	Short: "Download a file, or a directory when the address ends with /",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, local := args[0], args[1]
		if strings.HasSuffix(address, "/") {
			if info, err := os.Stat(local); err == nil && !info.IsDir() {
				return fmt.Errorf("%s exists and is not a directory", local)
			}
			result, err := client.GetDirectory(cmd.Context(), address, local)
			if err != nil {
				return err
			}
			fmt.Printf("transferred %d, skipped %d\n", result.Transferred, result.Skipped)
			return result.Err()
		}
		status, err := client.GetFile(cmd.Context(), address, local)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <local> <address>",
	Short: "Upload a file or a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, address := args[0], args[1]
		info, err := os.Stat(local)
		if err != nil {
			return err
		}
		if info.IsDir() {
			result, err := client.PushDirectory(cmd.Context(), local, address)
			if err != nil {
				return err
			}
			fmt.Printf("transferred %d, skipped %d\n", result.Transferred, result.Skipped)
			return result.Err()
		}
		status, err := client.Push(cmd.Context(), local, address)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var pushAllCmd = &cobra.Command{
	Use:   "push-all <local> <address>...",
	Short: "Upload a file to several storages in one pass",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.PushAll(cmd.Context(), args[0], args[1:]...)
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <address>",
	Short: "Print metadata for a remote file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stat, err := client.Stat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if stat.IsDir {
			fmt.Println("dir")
			return nil
		}
		fmt.Printf("size %d\n", stat.Size)
		if !stat.ModTime.IsZero() {
			fmt.Printf("modified %s\n", stat.ModTime.Format("2006-01-02T15:04:05"))
		}
		for t, sum := range stat.Hashes {
			fmt.Printf("%s %s\n", t, sum)
		}
		return nil
	},
}

var (
	catFormat string
	catBuffer int
)

var catCmd = &cobra.Command{
	Use:   "cat <address>",
	Short: "Stream a remote file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stream, err := client.Stream(cmd.Context(), args[0], catBuffer, polystore.StreamOptions{Format: catFormat})
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			chunk, err := stream.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := os.Stdout.Write(chunk); err != nil {
				return err
			}
		}
	},
}

var deleteRecursive bool

var deleteCmd = &cobra.Command{
	Use:   "delete <address>",
	Short: "Delete a remote file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Delete(cmd.Context(), args[0], deleteRecursive)
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <address>",
	Short: "Create a remote directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Mkdir(cmd.Context(), args[0])
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <address> <new-address>",
	Short: "Rename within a storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Rename(cmd.Context(), args[0], args[1])
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the storage map file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	listCmd.Flags().BoolVarP(&listRecursive, "recursive", "r", false, "recursive listing")
	listCmd.Flags().BoolVar(&listManifest, "manifest", false, "emit the listing as an NDJSON manifest")
	deleteCmd.Flags().BoolVarP(&deleteRecursive, "recursive", "r", false, "delete directories recursively")
	catCmd.Flags().StringVar(&catFormat, "format", "", "decompress while streaming: gzip or zstd")
	catCmd.Flags().IntVar(&catBuffer, "buffer", 0, "chunk size in bytes")

	for _, cmd := range []*cobra.Command{getCmd, pushCmd} {
		cmd.Flags().StringArrayVar(&filterInclude, "include", nil, "only transfer files matching the pattern")
		cmd.Flags().StringArrayVar(&filterExclude, "exclude", nil, "skip files matching the pattern")
		cmd.Flags().StringVar(&filterFrom, "filter-from", "", "read filter rules from a file")
	}

	rootCmd.AddCommand(storagesCmd, listCmd, getCmd, pushCmd, pushAllCmd, statCmd, catCmd, deleteCmd, mkdirCmd, renameCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

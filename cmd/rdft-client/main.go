// Command rdft-client drives upload/download/list/delete operations against
// an rdft-server, with colored status lines and a tabular list view
// (spec.md §6.3, §9 CLI surface).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"rdft/internal/rclient"
	"rdft/internal/storage"
	"rdft/internal/transport"
)

type globalOpts struct {
	user       string
	password   string
	host       string
	port       int
	clientHost string
	clientPort int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:   "rdft-client",
		Short: "Reliable Datagram File Transfer client",
	}
	root.PersistentFlags().StringVar(&opts.user, "user", "", "user name (anonymous if omitted)")
	root.PersistentFlags().StringVar(&opts.password, "password", "", "password (requires --user)")
	root.PersistentFlags().StringVar(&opts.host, "host", "127.0.0.1", "server host")
	root.PersistentFlags().IntVar(&opts.port, "port", 9000, "server port")
	root.PersistentFlags().StringVar(&opts.clientHost, "client-host", "0.0.0.0", "local bind host")
	root.PersistentFlags().IntVar(&opts.clientPort, "client-port", 0, "local bind port (0 = ephemeral)")

	root.AddCommand(newUploadCmd(opts), newDownloadCmd(opts), newListCmd(opts), newDeleteCmd(opts))
	return root
}

func newClient(opts *globalOpts) (*rclient.Client, *transport.UDP, error) {
	tp, err := transport.NewUDP(opts.clientHost, opts.clientPort, 300*time.Millisecond)
	if err != nil {
		return nil, nil, err
	}
	cl := rclient.New(rclient.Config{
		CwndStart:      1500,
		MaxSegmentSize: 1200,
		SoftTimeout:    100 * time.Millisecond,
	}, tp, transport.Addr{Host: opts.host, Port: opts.port})
	return cl, tp, nil
}

func (o *globalOpts) anonymous() bool { return o.user == "" }

func newUploadCmd(opts *globalOpts) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "upload <src>",
		Short: "Upload a local file or directory to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			info, err := os.Stat(src)
			if err != nil {
				return err
			}
			isFile := !info.IsDir()
			var data []byte
			if isFile {
				data, err = os.ReadFile(src)
			} else {
				data, err = storage.ZipDir(afero.NewOsFs(), src)
			}
			if err != nil {
				return err
			}
			if dest == "" {
				dest = filepath.Base(src)
			}
			cl, tp, err := newClient(opts)
			if err != nil {
				return err
			}
			defer tp.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := cl.Upload(ctx, dest, data, isFile, opts.anonymous(), opts.user, opts.password); err != nil {
				return err
			}
			kind := "file"
			if !isFile {
				kind = "directory"
			}
			color.New(color.FgGreen).Printf("uploaded %s (%s) -> %s (%d bytes)\n", src, kind, dest, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "destination path on the server (defaults to the source's base name)")
	return cmd
}

func newDownloadCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "download <src> <dst>",
		Short: "Download a file or directory from the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]
			cl, tp, err := newClient(opts)
			if err != nil {
				return err
			}
			defer tp.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			data, isFile, err := cl.Download(ctx, src, opts.anonymous(), opts.user, opts.password)
			if err != nil {
				return err
			}
			if isFile {
				if err := os.WriteFile(dst, data, 0o644); err != nil {
					return err
				}
			} else {
				if err := storage.UnzipDir(afero.NewOsFs(), dst, data); err != nil {
					return err
				}
			}
			kind := "file"
			if !isFile {
				kind = "directory"
			}
			color.New(color.FgGreen).Printf("downloaded %s (%s) -> %s (%d bytes)\n", src, kind, dst, len(data))
			return nil
		},
	}
}

func newListCmd(opts *globalOpts) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "list [path]",
		Short: "List a directory on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cl, tp, err := newClient(opts)
			if err != nil {
				return err
			}
			defer tp.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			entries, err := cl.List(ctx, path, recursive, opts.anonymous(), opts.user, opts.password)
			if err != nil {
				return err
			}
			printListing(entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&recursive, "recursive", false, "recurse into subdirectories")
	return cmd
}

func printListing(entries []storage.Entry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Name", "Size", "Modified"})
	for _, e := range entries {
		kind := "file"
		size := fmt.Sprintf("%d", e.Size)
		if e.IsDir {
			kind = "dir"
			size = "-"
		}
		modified := time.Unix(int64(e.ModTime), 0).UTC().Format(time.RFC3339)
		table.Append([]string{kind, e.Name, size, modified})
	}
	table.Render()
}

func newDeleteCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a file or directory on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cl, tp, err := newClient(opts)
			if err != nil {
				return err
			}
			defer tp.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			isFile, err := cl.Delete(ctx, path, opts.anonymous(), opts.user, opts.password)
			if err != nil {
				return err
			}
			kind := "directory"
			if isFile {
				kind = "file"
			}
			color.New(color.FgGreen).Printf("deleted %s (%s)\n", path, kind)
			return nil
		},
	}
}

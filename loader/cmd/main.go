package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chatanything/app/deps"
	"chatanything/config"
	"chatanything/loader/service"
	"chatanything/types"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	root := &cobra.Command{
		Use:          "loader",
		Short:        "Ingest documents into the chat index",
		SilenceUsage: true,
	}
	root.AddCommand(watchCMD(), ingestCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func watchCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Ingest every file dropped into the inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeDeps(d)

			lc := d.Config.Loader
			w, err := service.NewWatcher(d.Pipeline, lc.InboxDir, lc.ArchiveDir, lc.BadDir, lc.SettleTime())
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
}

func ingestCMD() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "ingest <file-or-url>",
		Short: "Ingest one file or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := uploadFor(args[0], category)
			if err != nil {
				return err
			}

			d, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDeps(d)

			res, err := d.Pipeline.Ingest(cmd.Context(), up)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d chunks of %s (%s)\n", res.Chunks, res.Path, res.Category)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "media type (default: derived from the file extension)")
	return cmd
}

// uploadFor resolves the category of a source. Files default to their
// extension; URLs need an explicit category.
func uploadFor(source, category string) (types.Upload, error) {
	if category == "" {
		c, ok := types.CategoryForFile(source)
		if !ok {
			return types.Upload{}, fmt.Errorf("cannot derive a media type for %s, pass --category", source)
		}
		return types.Upload{Source: source, Path: filepath.Base(source), Category: c}, nil
	}
	c, err := types.ParseCategory(category)
	if err != nil {
		return types.Upload{}, err
	}
	if c.IsURL() {
		return types.Upload{Source: source, Path: source, Category: c}, nil
	}
	if !c.Accepts(source) {
		return types.Upload{}, fmt.Errorf("%s is not a valid %s file (accepted: %v)", source, c, c.Extensions())
	}
	return types.Upload{Source: source, Path: filepath.Base(source), Category: c}, nil
}

func open(ctx context.Context) (*deps.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	d, err := deps.BuildIngest(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func closeDeps(d *deps.Deps) {
	log.Println("Closing storage connections...")
	if err := d.Close(); err != nil {
		log.Printf("error closing storage: %v\n", err)
	}
}

func mustLoadEnvVariables() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Error loading .env file: ", err)
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/ingest"
	"lectern/internal/ipc"
	"lectern/internal/services/chunking"
	"lectern/internal/services/extraction"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		title    string
		langCode string
		level    string
	)
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Register a document file and queue its processing pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.ExtensionAllowed(info.Name()) {
				return fmt.Errorf("unsupported file extension %q", strings.ToLower(filepath.Ext(info.Name())))
			}

			return ctx.withStore(func(client *ipc.Client, stores *directStores) error {
				if client != nil {
					// Use IPC if daemon is running
					resp, err := client.Ingest(ipc.IngestRequest{
						Path:     absPath,
						Title:    title,
						Language: langCode,
						Level:    level,
					})
					if err != nil {
						return err
					}
					if resp == nil {
						return errors.New("empty response from daemon")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as document #%d (pipeline #%d)\n", filepath.Base(absPath), resp.Document.ID, resp.Pipeline.ID)
				} else {
					// Use direct store access
					svc := ingest.NewService(cfg, stores.docs, stores.pipelines, extraction.NewService(nil), chunking.NewService(nil), nil)
					doc, pl, err := svc.IngestFile(cmd.Context(), absPath, ingest.Options{
						Title:    title,
						Language: langCode,
						Level:    level,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as document #%d (pipeline #%d)\n", filepath.Base(absPath), doc.ID, pl.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVar(&langCode, "language", "", "Document language code")
	cmd.Flags().StringVar(&level, "level", "", "Target learner level")
	return cmd
}

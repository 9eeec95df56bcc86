package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/resona/internal/client"
	"github.com/JakeFAU/resona/internal/uploads"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload audio recordings to the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			ups, err := uploadPaths(cmd.Context(), c, args)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(ups))
			for _, up := range ups {
				rows = append(rows, []string{up.StoredFilename, up.Filename, humanBytes(up.Size)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "File", "Size"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

// uploadPaths sends local files in one request and returns the stored entries
// in argument order.
func uploadPaths(ctx context.Context, c *client.Client, paths []string) ([]uploads.Upload, error) {
	files := make([]client.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		defer func() { _ = f.Close() }()
		files = append(files, client.File{
			Name:        filepath.Base(p),
			ContentType: contentTypeFor(p),
			Body:        f,
		})
	}
	resp, err := c.Upload(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return resp.Files, nil
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func newFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List audio files staged on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			files, err := c.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files uploaded")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.Filename, f.OriginalName, humanBytes(f.Size), f.UploadedAt.Local().Format(time.DateTime)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Size", "Uploaded"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/store"
)

// accessTokenEnv supplies --token when the flag is omitted.
const accessTokenEnv = "GOOGLE_ACCESS_TOKEN"

func newNotebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notebook",
		Aliases: []string{"notebooks", "nb"},
		Short:   "Create and browse research notebooks",
	}
	cmd.AddCommand(newNotebookCreateCmd())
	cmd.AddCommand(newNotebookListCmd())
	cmd.AddCommand(newNotebookShowCmd())
	cmd.AddCommand(newNotebookNoteCmd())
	return cmd
}

type createOptions struct {
	project     string
	date        string
	researchers []string
	cohorts     string
	methodology string
	token       string
	parent      string
	files       []string
	fileIDs     []string
	wait        bool
	detach      bool
}

func newNotebookCreateCmd() *cobra.Command {
	opts := &createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a research notebook in Google Drive",
		Long: `Creates a project folder with a summary PDF and an audio_files subfolder
holding the selected recordings.

Local files given with --file are uploaded first. By default the server runs
the creation in the background and this command follows its progress; --wait
blocks on a single request instead and prints the full result.`,
		Example: `  resona notebook create --project "Checkout study" --researcher Ana --researcher Ben \
    --cohorts "Returning shoppers" --methodology remote --file interview1.mp3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNotebookCreate(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.project, "project", "", "project name (required)")
	f.StringVar(&opts.date, "date", "", "session date, YYYY-MM-DD (default today)")
	f.StringSliceVar(&opts.researchers, "researcher", nil, "researcher name, repeatable")
	f.StringVar(&opts.cohorts, "cohorts", "", "user cohorts interviewed (required)")
	f.StringVar(&opts.methodology, "methodology", "in-person", `"in-person" or "remote"`)
	f.StringVar(&opts.token, "token", "", "Google OAuth access token (default $"+accessTokenEnv+")")
	f.StringVar(&opts.parent, "parent", "", "parent folder ID or URL (default drive.parent_folder_id on the server)")
	f.StringSliceVar(&opts.files, "file", nil, "local audio file to upload first, repeatable")
	f.StringSliceVar(&opts.fileIDs, "file-id", nil, "ID of an already uploaded file, repeatable")
	f.BoolVar(&opts.wait, "wait", false, "wait for the whole run in one request")
	f.BoolVar(&opts.detach, "detach", false, "print the progress ID and return without watching")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("cohorts")
	cmd.MarkFlagsMutuallyExclusive("wait", "detach")
	return cmd
}

func parseMethodology(s string) (notebook.Methodology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in-person", "inperson", "in person", strings.ToLower(string(notebook.MethodologyInPerson)):
		return notebook.MethodologyInPerson, nil
	case "remote", strings.ToLower(string(notebook.MethodologyRemote)):
		return notebook.MethodologyRemote, nil
	default:
		return "", fmt.Errorf("unknown methodology %q: use in-person or remote", s)
	}
}

func runNotebookCreate(cmd *cobra.Command, opts *createOptions) error {
	ctx := cmd.Context()
	c, cfg, err := clientFrom(ctx)
	if err != nil {
		return err
	}
	method, err := parseMethodology(opts.methodology)
	if err != nil {
		return err
	}
	token := opts.token
	if token == "" {
		token = os.Getenv(accessTokenEnv)
	}
	date := opts.date
	if date == "" {
		date = newClock().Now().Local().Format(time.DateOnly)
	}

	ids := append([]string(nil), opts.fileIDs...)
	if len(opts.files) > 0 {
		ups, err := uploadPaths(ctx, c, opts.files)
		if err != nil {
			return err
		}
		for _, up := range ups {
			ids = append(ids, up.StoredFilename)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d file(s)\n", len(ups))
	}

	req := notebook.CreateRequest{
		ProjectName:    opts.project,
		Date:           date,
		Researchers:    notebook.Researchers(opts.researchers),
		UserCohorts:    opts.cohorts,
		Methodology:    method,
		AudioFileIDs:   ids,
		AccessToken:    token,
		ParentFolderID: opts.parent,
	}

	if opts.wait {
		res, err := c.CreateNotebook(ctx, req)
		if err != nil {
			return err
		}
		printCreateResult(cmd, res)
		return nil
	}

	acc, err := c.StartNotebook(ctx, req)
	if err != nil {
		return err
	}
	if opts.detach {
		fmt.Fprintln(cmd.OutOrStdout(), acc.ProgressID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", acc.ProgressID)
	return watchOperation(cmd, c, cfg, acc.ProgressID, false)
}

func printCreateResult(cmd *cobra.Command, res *notebook.CreateResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Message)
	fmt.Fprintf(out, "Folder: %s\n", res.FolderLink)
	if len(res.Files) > 0 {
		rows := make([][]string, 0, len(res.Files))
		for _, f := range res.Files {
			rows = append(rows, []string{f.Name, humanBytes(f.Size), f.WebViewLink})
		}
		fmt.Fprintln(out, renderTable([]string{"File", "Size", "Link"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
	}
	for _, fe := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", fe.File, fe.Error)
	}
}

func newNotebookListCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved notebooks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			nbs, err := c.ListNotebooks(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(nbs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notebooks yet")
				return nil
			}
			rows := make([][]string, 0, len(nbs))
			for _, nb := range nbs {
				rows = append(rows, []string{
					nb.ID,
					nb.ProjectName,
					nb.Date,
					nb.Methodology,
					strconv.Itoa(nb.AudioFileCount),
					strconv.Itoa(len(nb.Insights) + len(nb.Opportunities) + len(nb.PainPoints)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Project", "Date", "Methodology", "Audio", "Notes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum notebooks to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "notebooks to skip")
	return cmd
}

func newNotebookShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NOTEBOOK_ID",
		Short: "Show a notebook and its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			nb, err := c.GetNotebook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", nb.ProjectName, nb.Date)
			fmt.Fprintf(out, "Researchers: %s\n", strings.Join(nb.Researchers, ", "))
			fmt.Fprintf(out, "Cohorts:     %s\n", nb.UserCohorts)
			fmt.Fprintf(out, "Methodology: %s\n", nb.Methodology)
			if nb.DriveFolderURL != "" {
				fmt.Fprintf(out, "Folder:      %s\n", nb.DriveFolderURL)
			}
			sections := []struct {
				title string
				notes []store.Note
			}{
				{"Insights", nb.Insights},
				{"Opportunities", nb.Opportunities},
				{"Pain points", nb.PainPoints},
			}
			for _, sec := range sections {
				if len(sec.notes) == 0 {
					continue
				}
				rows := make([][]string, 0, len(sec.notes))
				for _, n := range sec.notes {
					rows = append(rows, []string{n.ID, n.Text})
				}
				fmt.Fprintf(out, "\n%s\n%s\n", sec.title, renderTable([]string{"ID", "Note"}, rows, nil))
			}
			return nil
		},
	}
}

func newNotebookNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage note cards on a notebook",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add NOTEBOOK_ID KIND TEXT",
		Short: "Add a note card (KIND is insights, opportunities or pain_points)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseNoteKind(args[1])
			if err != nil {
				return err
			}
			text := strings.TrimSpace(args[2])
			if text == "" {
				return errors.New("note text is required")
			}
			c, _, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			note, err := c.AddNote(cmd.Context(), args[0], kind, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), note.ID)
			return nil
		},
	})
	return cmd
}

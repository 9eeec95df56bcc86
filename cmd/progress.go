package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/resona/internal/client"
	"github.com/JakeFAU/resona/internal/config"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/poller"
)

const barWidth = 20

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect notebook operations",
	}
	cmd.AddCommand(newProgressWatchCmd())
	return cmd
}

func newProgressWatchCmd() *cobra.Command {
	var succeeded bool
	cmd := &cobra.Command{
		Use:   "watch PROGRESS_ID",
		Short: "Follow a notebook operation until it finishes",
		Long: `Polls the progress endpoint until the operation completes or fails.

A record that has already expired is reported as unresolved unless
--succeeded says the creating request is known to have succeeded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := clientFrom(cmd.Context())
			if err != nil {
				return err
			}
			return watchOperation(cmd, c, cfg, args[0], succeeded)
		},
	}
	cmd.Flags().BoolVar(&succeeded, "succeeded", false, "treat a missing record as a finished operation")
	return cmd
}

// watchOperation polls id and renders each change as one line. A timeout is
// not an error: the operation may still finish on the server.
func watchOperation(cmd *cobra.Command, c *client.Client, cfg config.Config, id string, initiatorSucceeded bool) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	p := poller.New(c, newClock(), poller.Config{
		Interval:    cfg.Client.PollInterval,
		Timeout:     cfg.Client.PollTimeout,
		SettleDelay: cfg.Client.SettleDelay,
	})
	defer p.Stop()

	var last operation.Status
	seen := false
	outcome, err := p.Run(cmd.Context(), id, initiatorSucceeded, func(u poller.Update) {
		if u.Err != nil {
			if !errors.Is(u.Err, operation.ErrNotFound) {
				fmt.Fprintf(errOut, "poll %d failed: %v\n", u.Attempt, u.Err)
			}
			return
		}
		if seen && u.Status == last {
			return
		}
		seen, last = true, u.Status
		printStatus(out, u.Status)
	})

	switch outcome {
	case poller.Completed:
		fmt.Fprintln(out, "Notebook created.")
		return nil
	case poller.Failed:
		return fmt.Errorf("notebook creation failed: %s", last.Message)
	case poller.Unresolved:
		return fmt.Errorf("operation %s is no longer tracked and its outcome is unknown: %w", id, err)
	case poller.TimedOut:
		fmt.Fprintf(out, "Stopped watching after %s. The operation may still be running; check again with \"resona progress watch %s\".\n",
			cfg.Client.PollTimeout, id)
		return nil
	default:
		return err
	}
}

func printStatus(w io.Writer, st operation.Status) {
	pct := min(max(st.Progress, 0), 100)
	filled := pct * barWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(w, "[%s] %3d%%  %-22s %s\n", bar, pct, st.Step, st.Message)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type poolStatus struct {
	Name      string `json:"name"`
	Affinity  string `json:"affinity"`
	Workers   int    `json:"workers"`
	ThreadIDs []int  `json:"thread_ids"`
	Incoming  int    `json:"incoming"`
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
	Stopping  bool   `json:"stopping"`
}

type schedulerStatus struct {
	InstanceID string       `json:"instance_id"`
	Running    bool         `json:"running"`
	Registered int          `json:"registered"`
	Completed  int64        `json:"completed"`
	Rejected   int64        `json:"rejected"`
	Regular    poolStatus   `json:"regular"`
	Windows    []poolStatus `json:"windows"`
}

func newStatusCmd() *cobra.Command {
	server := defaultServer()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pools and counters of a running affinityd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := NewClient(server, newLogger(cfg)).Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var st schedulerStatus
			if err := json.Unmarshal(resp.Data, &st); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", server, "affinityd URL (or AFFINITYD_SERVER env)")
	return cmd
}

func printStatus(out io.Writer, st schedulerStatus) {
	state := "running"
	if !st.Running {
		state = "stopped"
	}
	fmt.Fprintf(out, "Instance:   %s (%s)\n", st.InstanceID, state)
	fmt.Fprintf(out, "Registered: %s\n", humanize.Comma(int64(st.Registered)))
	fmt.Fprintf(out, "Completed:  %s\n", humanize.Comma(st.Completed))
	fmt.Fprintf(out, "Rejected:   %s\n\n", humanize.Comma(st.Rejected))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tAFFINITY\tWORKERS\tINCOMING\tQUEUED\tRUNNING\tTHREADS")
	for _, p := range append([]poolStatus{st.Regular}, st.Windows...) {
		name := p.Name
		if p.Stopping {
			name += " (stopping)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			name, p.Affinity, p.Workers, p.Incoming, p.Queued, p.Running, joinInts(p.ThreadIDs))
	}
	tw.Flush()
}

func joinInts(v []int) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func newAbortCmd() *cobra.Command {
	server := defaultServer()
	cmd := &cobra.Command{
		Use:   "abort <task_id>",
		Short: "Abort a task on a running affinityd",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := NewClient(server, newLogger(cfg)).Post("/api/v1/tasks/"+args[0]+"/abort", nil); err != nil {
				return fmt.Errorf("abort task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s aborted\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", server, "affinityd URL (or AFFINITYD_SERVER env)")
	return cmd
}

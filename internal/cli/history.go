package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
)

var (
	historySince  time.Duration
	historyLatest bool
)

func init() {
	historyCmd.Flags().DurationVar(&historySince, "since", time.Hour, "how far back to read")
	historyCmd.Flags().BoolVar(&historyLatest, "latest", false, "print only the newest event, however old")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history CHANNEL",
	Short: "Print journaled events for a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	channel, err := resolveChannel(args[0])
	if err != nil {
		return err
	}
	if historySince <= 0 {
		return fmt.Errorf("--since must be positive")
	}

	client, closeFn, err := dial(busFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	out := cmd.OutOrStdout()
	var events []storage.Event
	if historyLatest {
		e, err := client.Latest(ctx, channel)
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Fprintf(out, "No events on %s.\n", channel)
			return nil
		}
		events = append(events, *e)
	} else {
		to := time.Now()
		events, err = client.History(ctx, channel, to.Add(-historySince).UnixMilli(), to.UnixMilli())
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintf(out, "No events on %s in the last %s.\n", channel, historySince)
			return nil
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSUBSCRIPTION\tPAYLOAD")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04:05"),
			shortID(e.SubscriptionID),
			e.Payload,
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

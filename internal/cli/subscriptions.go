package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
)

var subscriptionsSince time.Duration

func init() {
	subscriptionsCmd.Flags().DurationVar(&subscriptionsSince, "since", 0, "also list journaled subscriptions live in this window")
	rootCmd.AddCommand(subscriptionsCmd)
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List active subscriptions and, with --since, past ones",
	Args:  cobra.NoArgs,
	RunE:  runSubscriptions,
}

func runSubscriptions(cmd *cobra.Command, args []string) error {
	if subscriptionsSince < 0 {
		return fmt.Errorf("--since must not be negative")
	}

	client, closeFn, err := dial(busFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	active, err := client.Subscriptions(ctx)
	if err != nil {
		return fmt.Errorf("active subscriptions: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := printActive(out, active); err != nil {
		return err
	}
	if subscriptionsSince == 0 {
		return nil
	}

	to := time.Now()
	past, err := client.SubscriptionHistory(ctx, to.Add(-subscriptionsSince).UnixMilli(), to.UnixMilli())
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	return printSubscriptionHistory(out, past)
}

func printActive(out io.Writer, active map[string]string) error {
	if len(active) == 0 {
		fmt.Fprintln(out, "No active subscriptions.")
		return nil
	}
	channels := make([]string, 0, len(active))
	for c := range active {
		channels = append(channels, c)
	}
	sort.Strings(channels)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tSUBSCRIPTION")
	for _, c := range channels {
		fmt.Fprintf(w, "%s\t%s\n", c, active[c])
	}
	return w.Flush()
}

func printSubscriptionHistory(out io.Writer, subs []storage.Subscription) error {
	if len(subs) == 0 {
		fmt.Fprintf(out, "No journaled subscriptions in the last %s.\n", subscriptionsSince)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tENDED\tCHANNEL\tSUBSCRIPTION\tCAPABILITY")
	for _, s := range subs {
		ended := "active"
		if s.EndTime != 0 {
			ended = time.UnixMilli(s.EndTime).Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(s.StartTime).Format("2006-01-02 15:04:05"),
			ended,
			s.Channel,
			shortID(s.ID),
			s.Capability,
		)
	}
	return w.Flush()
}

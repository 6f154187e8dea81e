package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
)

func init() {
	rootCmd.AddCommand(scoreCmd)
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show the eco score, low-end classification and scoring predicates",
	Args:  cobra.NoArgs,
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	client, closeFn, err := dial(busFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	eco, err := client.Call(ctx, bridge.MethodEcoScore)
	if err != nil {
		return fmt.Errorf("eco score: %w", err)
	}
	lowEnd, err := client.Call(ctx, bridge.MethodIsLowEndDevice)
	if err != nil {
		return fmt.Errorf("low-end classification: %w", err)
	}

	preds, err := client.ScoreBreakdown(ctx)
	if err != nil {
		return fmt.Errorf("score breakdown: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Eco score:  %s\n", formatValue(bridge.MethodEcoScore, eco))
	fmt.Fprintf(out, "Low-end:    %v\n", lowEnd)
	fmt.Fprintln(out)

	names := make([]string, 0, len(preds))
	for name := range preds {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREDICATE\tHOLDS")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%v\n", name, preds[name])
	}
	return w.Flush()
}

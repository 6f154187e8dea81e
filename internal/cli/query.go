package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

// queryMethods is the display order for "ecoctl query all".
var queryMethods = []string{
	bridge.MethodPlatformInfo,
	bridge.MethodBatteryLevel,
	bridge.MethodBatteryState,
	bridge.MethodLowPowerMode,
	bridge.MethodThermalState,
	bridge.MethodProcessorCount,
	bridge.MethodTotalMemory,
	bridge.MethodFreeMemory,
	bridge.MethodTotalStorage,
	bridge.MethodFreeStorage,
	bridge.MethodEcoScore,
	bridge.MethodIsLowEndDevice,
	bridge.MethodConnectivity,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query METHOD|all",
	Short: "Run a device query, e.g. getBatteryLevel",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, closeFn, err := dial(busFlag)
	if err != nil {
		return err
	}
	defer closeFn()

	if args[0] == "all" {
		return queryAll(cmd.Context(), cmd.OutOrStdout(), client)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()
	v, err := client.Call(ctx, args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatValue(args[0], v))
	return nil
}

// queryAll prints every query. Failed queries print their error instead of
// aborting the table.
func queryAll(ctx context.Context, out io.Writer, client daemonClient) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tVALUE")
	for _, m := range queryMethods {
		callCtx, cancel := context.WithTimeout(ctx, timeoutFlag)
		v, err := client.Call(callCtx, m)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", m, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", m, formatValue(m, v))
	}
	return w.Flush()
}

func formatValue(method string, v any) string {
	switch method {
	case bridge.MethodTotalMemory, bridge.MethodFreeMemory, bridge.MethodTotalStorage, bridge.MethodFreeStorage:
		if n, ok := v.(int64); ok {
			return fmt.Sprintf("%d (%s)", n, humanSize(n))
		}
	case bridge.MethodBatteryLevel:
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.0f%%", f)
		}
	case bridge.MethodEcoScore:
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.2f", f)
		}
	}
	return formatPayload(v)
}

// formatPayload renders a value that needs no method context, such as a
// channel event.
func formatPayload(v any) string {
	if c, ok := v.(telemetry.Connectivity); ok {
		if c.WifiSignalStrength != nil {
			return fmt.Sprintf("%s (%d dBm)", c.Type, *c.WifiSignalStrength)
		}
		return c.Type.String()
	}
	return fmt.Sprint(v)
}

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

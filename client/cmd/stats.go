package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/julienstroheker/RelayGate/internal/api"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show relay counters",
	Long:  `Fetch /api/stats and print connection and byte counters`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient(cmd).Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		return printStats(cmd.OutOrStdout(), stats)
	},
}

var connsCmd = &cobra.Command{
	Use:     "conns",
	Aliases: []string{"connections"},
	Short:   "List live connections",
	Long:    `Fetch /api/connections and print every connection the relay is handling`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conns, err := newClient(cmd).Connections(cmd.Context())
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(cmd.OutOrStdout(), conns)
		}
		return printConnections(cmd.OutOrStdout(), conns)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the relay is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, connsCmd, healthCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, s *api.StatsResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	uptime := time.Duration(s.UptimeSeconds * float64(time.Second)).Round(time.Second)

	fmt.Fprintf(tw, "Started:\t%s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Uptime:\t%s\n", uptime)
	fmt.Fprintf(tw, "Connections handled:\t%d\n", s.ConnectionsHandled)
	fmt.Fprintf(tw, "Connections active:\t%d\n", s.ConnectionsActive)
	fmt.Fprintf(tw, "Connections rejected:\t%d\n", s.ConnectionsRejected)
	fmt.Fprintf(tw, "Connections failed:\t%d\n", s.ConnectionsFailed)
	fmt.Fprintf(tw, "Bytes upstream:\t%d\n", s.BytesUpstream)
	fmt.Fprintf(tw, "Bytes downstream:\t%d\n", s.BytesDownstream)
	fmt.Fprintf(tw, "Bytes transferred:\t%d\n", s.BytesTransferred)
	fmt.Fprintf(tw, "Status requests:\t%d\n", s.StatusRequests)
	return tw.Flush()
}

func printConnections(w io.Writer, resp *api.ConnectionsResponse) error {
	if resp.Count == 0 {
		_, err := fmt.Fprintln(w, "No active connections")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tREMOTE\tTARGET\tAGE\tUP\tDOWN")
	for _, c := range resp.Connections {
		target := c.Target
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			c.ID, c.State, c.RemoteAddr, target,
			time.Since(c.CreatedAt).Round(time.Second), c.BytesUp, c.BytesDown)
	}
	return tw.Flush()
}

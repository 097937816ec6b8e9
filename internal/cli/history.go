package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/tandem/internal/output"
	"github.com/dshills/tandem/internal/store"
)

var (
	flagHistoryLimit  int
	flagHistoryJSON   bool
	flagHistoryFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past review verdicts",
}

func openHistory() (*store.Store, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, runtimeErr(err)
	}
	return db, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent verdicts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		sums, err := db.List(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return runtimeErr(err)
		}

		out := cmd.OutOrStdout()
		if flagHistoryJSON {
			data, err := json.MarshalIndent(sums, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if len(sums) == 0 {
			fmt.Fprintln(out, "No reviews recorded yet.")
			return nil
		}
		return writeHistoryTable(out, sums)
	},
}

func writeHistoryTable(w io.Writer, sums []store.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tKIND\tSOURCE\tOUTCOME\tROUNDS\tFINDINGS")
	for _, s := range sums {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		findings := fmt.Sprintf("%d", s.Findings)
		if s.Highest != "" {
			findings = fmt.Sprintf("%d (%s)", s.Findings, s.Highest)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			id, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Kind, s.Source, s.Outcome, s.Rounds, findings)
	}
	return tw.Flush()
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a past verdict (an ID prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := output.GetWriter(flagHistoryFormat)
		if err != nil {
			return err
		}

		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := db.Get(cmd.Context(), args[0])
		if err != nil {
			return runtimeErr(err)
		}
		return w.Write(cmd.OutOrStdout(), v)
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyListCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Number of verdicts to list (0 = all)")
	historyListCmd.Flags().BoolVar(&flagHistoryJSON, "json", false, "Print the listing as JSON")
	historyShowCmd.Flags().StringVar(&flagHistoryFormat, "format", "text", "Output format ("+strings.Join(output.Formats, ", ")+")")
}

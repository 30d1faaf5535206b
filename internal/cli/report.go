package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/mountrace/internal/events"
)

var reportCmd = &cobra.Command{
	Use:   "report [probes-file]",
	Short: "Summarize recorded probes",
	Long: `Summarize a probes file written by 'mountrace run', grouped by race delay.

Without an argument the configured output.probes_file is read.

Example:
  mountrace report probes.jsonl
  mountrace report probes.jsonl --run 6f1c2a8e-3b9d-4c55-a0a4-5d2f1e9b7c10`,
	Args: cobra.MaximumNArgs(1),
	RunE: reportProbes,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("run", "", "Only include probes from this run id")
}

func reportProbes(cmd *cobra.Command, args []string) error {
	path := viper.GetString("output.probes_file")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no probes file given and output.probes_file is not set")
	}

	records, err := events.ReadRecords(path)
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run")
	records = events.FilterByRun(records, runID)

	writeReport(cmd.OutOrStdout(), records)
	return nil
}

func writeReport(out io.Writer, records []events.ProbeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No probes recorded")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DELAY\tPROBES\tRACED\tMOUNTED_EARLY\tNO_CONNECT\tUNHEALTHY")
	for _, s := range events.SummarizeByDelay(records) {
		fmt.Fprintf(tw, "%dms\t%d\t%d\t%d\t%d\t%d\n",
			s.DelayMS, s.Probes,
			s.Outcomes[events.OutcomeRaced],
			s.Outcomes[events.OutcomeMountedEarly],
			s.Outcomes[events.OutcomeNoConnect],
			s.Unhealthy)
	}
	_ = tw.Flush()

	fatal := events.FilterByOutcome(records, events.OutcomeConflict, events.OutcomeInconsistent, events.OutcomeTransportError)
	fmt.Fprintf(out, "\n%d probes, %d fatal\n", len(records), len(fatal))
	for _, r := range fatal {
		fmt.Fprintf(out, "  run %s cycle %d (delay %dms): %s: %s\n", r.RunID, r.Cycle, r.DelayMS, r.Outcome, r.Error)
	}
}

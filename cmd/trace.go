package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/trace"
)

var traceJSON bool

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Show the last extraction session",
	Long:  "Prints the persisted trace: session status, step timeline, token usage, and any partial data saved by an interrupted run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("trace"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tracer := trace.New(st)
		state := tracer.DisplayState()

		if traceJSON {
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal display state")
			}
			fmt.Println(string(out))
			return nil
		}

		if state.Session == nil {
			fmt.Println("No extraction sessions recorded.")
			return nil
		}
		printSession(state.Session)

		if partial, ok := tracer.Partial(); ok {
			fmt.Printf("\nPartial data saved at %s:\n", partial.SavedAt.Format(time.RFC3339))
			if partial.Metadata != nil {
				fmt.Printf("  metadata for invoice %q\n", partial.Metadata.InvoiceNumber)
			}
			fmt.Printf("  %d line item(s)\n", len(partial.LineItems))
		}
		return nil
	},
}

func printSession(s *model.ExtractionSession) {
	fmt.Printf("Session %s\n", s.ID)
	fmt.Printf("  status: %s  step: %s\n", s.Status, s.CurrentStep)
	fmt.Printf("  started: %s\n", s.StartedAt.Format(time.RFC3339))
	if s.EndedAt != nil {
		fmt.Printf("  ended: %s (%dms)\n", s.EndedAt.Format(time.RFC3339), s.Metrics.DurationMs)
	}
	fmt.Printf("  files: %d  payload: %d bytes\n", s.FileCount, s.PayloadBytes)
	fmt.Printf("  tokens: %d in / %d out  cost: $%.4f\n",
		s.Metrics.InputTokens, s.Metrics.OutputTokens, s.Metrics.CostUSD)

	if len(s.Events) > 0 {
		fmt.Println("  timeline:")
		for _, ev := range s.Events {
			line := fmt.Sprintf("    +%6dms  %-20s %s", ev.ElapsedMs, ev.Step, ev.Message)
			if ev.LatencyMs > 0 {
				line += fmt.Sprintf(" (%dms)", ev.LatencyMs)
			}
			fmt.Println(line)
		}
	}
}

var traceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted trace and partial data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("trace"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tracer := trace.New(st)
		tracer.ClearHistory()
		fmt.Println("Trace history cleared.")
		return nil
	},
}

func init() {
	traceCmd.Flags().BoolVar(&traceJSON, "json", false, "print the raw display state as JSON")
	traceCmd.AddCommand(traceClearCmd)
	rootCmd.AddCommand(traceCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tradedocs-cli/internal/resilience"
	"github.com/sells-group/tradedocs-cli/internal/trace"
)

var extractOutput string

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Extract structured data from one document",
	Long:  "Sends the given document files (PDF or image) to the AI service in two passes, header fields then line items, and prints the merged record as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		parts, err := loadFileParts(args, os.ReadFile)
		if err != nil {
			return err
		}

		tracer := trace.New(st)
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
		ex := newExtractor(tracer, breaker)

		record, err := ex.Extract(ctx, parts, func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})
		if err != nil {
			if tracer.HasPartial() {
				fmt.Fprintln(os.Stderr, "Partial data was saved; inspect it with `tradedocs trace`.")
			}
			return eris.Wrap(err, "extract")
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal record")
		}

		if extractOutput != "" {
			if err := os.WriteFile(extractOutput, append(out, '\n'), 0644); err != nil {
				return eris.Wrapf(err, "write %s", extractOutput)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", extractOutput)
			return nil
		}

		fmt.Println(string(out))
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write the record to a file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}

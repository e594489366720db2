package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casetrail/casetrail/internal/ingest"
)

var addRunFlags struct {
	source         string
	queryName      string
	queryText      string
	executedAt     string
	timeStart      string
	timeEnd        string
	allowDuplicate bool
}

var addRunCmd = &cobra.Command{
	Use:   "add-run <case-id> <file>",
	Short: "Register a query result file as a pending run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := service(store).AddRun(cmd.Context(), ingest.AddRunParams{
			CaseID:         args[0],
			SourceSystem:   addRunFlags.source,
			QueryName:      addRunFlags.queryName,
			QueryText:      addRunFlags.queryText,
			ExecutedAt:     addRunFlags.executedAt,
			TimeStart:      addRunFlags.timeStart,
			TimeEnd:        addRunFlags.timeEnd,
			FilePath:       args[1],
			AllowDuplicate: addRunFlags.allowDuplicate,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Run %s registered (%s, %s)\n", run.RunID, run.SourceSystem, run.QueryName)
		return nil
	},
}

var ingestFlags struct {
	strict       bool
	entityFields []string
	overrides    []string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <case-id> [run-id]",
	Short: "Normalize and commit pending runs into the event store",
	Long: `Ingest one run, or every pending run on the case in execution order
when no run id is given. Lenient mode (the default) skips bad rows and
reports them; --strict aborts the run on the first bad row, leaving the
store unchanged.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		overrides := make(map[string]string, len(ingestFlags.overrides))
		for _, kv := range ingestFlags.overrides {
			src, unified, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("bad --map %q, want source=unified", kv)
			}
			overrides[src] = unified
		}
		opts := ingest.Options{
			Strict:       ingestFlags.strict,
			EntityFields: ingestFlags.entityFields,
			Overrides:    overrides,
		}

		svc := service(store)
		var results []*ingest.Result
		if len(args) == 2 {
			res, err := svc.IngestRun(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return err
			}
			results = []*ingest.Result{res}
		} else {
			results, err = svc.IngestAll(cmd.Context(), args[0], opts)
			if err != nil {
				printResults(results)
				return err
			}
		}
		printResults(results)
		return nil
	},
}

func printResults(results []*ingest.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, res := range results {
		enc.Encode(res)
	}
}

func init() {
	addRunCmd.Flags().StringVar(&addRunFlags.source, "source", "", "Source system (splunk, kusto, cloudtrail, okta, ...)")
	addRunCmd.Flags().StringVar(&addRunFlags.queryName, "query-name", "", "Human label for the query")
	addRunCmd.Flags().StringVar(&addRunFlags.queryText, "query-text", "", "Query text as executed")
	addRunCmd.Flags().StringVar(&addRunFlags.executedAt, "executed-at", "", "When the query ran (default now)")
	addRunCmd.Flags().StringVar(&addRunFlags.timeStart, "time-start", "", "Query window start")
	addRunCmd.Flags().StringVar(&addRunFlags.timeEnd, "time-end", "", "Query window end")
	addRunCmd.Flags().BoolVar(&addRunFlags.allowDuplicate, "allow-duplicate", false, "Register even if the file content is already on the case")
	addRunCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(addRunCmd)

	ingestCmd.Flags().BoolVar(&ingestFlags.strict, "strict", false, "Abort the run on the first bad row")
	ingestCmd.Flags().StringSliceVar(&ingestFlags.entityFields, "entity-fields", nil, "Unified columns mined for entities")
	ingestCmd.Flags().StringArrayVar(&ingestFlags.overrides, "map", nil, "Mapping override source=unified (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

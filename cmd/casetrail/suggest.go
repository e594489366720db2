package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/casetrail/casetrail/internal/fieldmap"
	"github.com/casetrail/casetrail/internal/rowio"
)

var suggestFlags struct {
	source string
	save   bool
	caseID string
}

var suggestCmd = &cobra.Command{
	Use:   "suggest-map <file>",
	Short: "Propose a field mapping for a query result file",
	Long: `Read the file's header (CSV) or first record (JSON lines) and propose a
mapping onto the unified schema, combining the source's builtin map with
the alias pattern table. With --save the proposal is written to the case's
mappers directory for editing before ingestion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := rowio.Open(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		var observed []string
		if cr, ok := reader.(*rowio.CSVReader); ok {
			observed = cr.Header()
		} else {
			for {
				row, err := reader.Next()
				if err == io.EOF {
					break
				}
				var perr *rowio.ParseError
				if errors.As(err, &perr) {
					continue
				}
				if err != nil {
					return err
				}
				for f := range row.Fields {
					observed = append(observed, f)
				}
				sort.Strings(observed)
				break
			}
		}
		if len(observed) == 0 {
			return fmt.Errorf("no fields observed in %s", args[0])
		}

		m := fieldmap.Suggest(observed, fieldmap.BuiltinMap(suggestFlags.source))
		fieldMap := make(map[string]string, len(observed))
		for _, src := range m.Sources() {
			unified, _ := m.Unified(src)
			if unified == "" {
				fmt.Printf("%-40s -> (extras)\n", src)
				continue
			}
			fmt.Printf("%-40s -> %s\n", src, unified)
			fieldMap[src] = unified
		}
		for _, problem := range m.Validate() {
			fmt.Printf("warning: %s\n", problem)
		}

		if suggestFlags.save {
			if suggestFlags.caseID == "" {
				return errors.New("--save needs --case")
			}
			path, err := fieldmap.SaveConfig(caseFS().MappersDir(suggestFlags.caseID), &fieldmap.Config{
				Source:   suggestFlags.source,
				FieldMap: fieldMap,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Saved mapper config to %s\n", path)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().StringVar(&suggestFlags.source, "source", "", "Source system, to seed from its builtin map")
	suggestCmd.Flags().BoolVar(&suggestFlags.save, "save", false, "Write the proposal as a case mapper config")
	suggestCmd.Flags().StringVar(&suggestFlags.caseID, "case", "", "Case receiving the saved config")
	rootCmd.AddCommand(suggestCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casetrail/casetrail/internal/model"
	"github.com/casetrail/casetrail/internal/normalize"
)

var caseTitle string

var initCaseCmd = &cobra.Command{
	Use:   "init-case <case-id>",
	Short: "Create a case workspace and its database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID := args[0]
		if err := caseFS().Init(caseID); err != nil {
			return err
		}
		store, err := openStore(caseID, true)
		if err != nil {
			return err
		}
		defer store.Close()

		title := caseTitle
		if title == "" {
			title = caseID
		}
		if err := store.CreateCase(cmd.Context(), &model.Case{
			CaseID:    caseID,
			Title:     title,
			CreatedAt: normalize.NowUTC(),
		}); err != nil {
			return err
		}
		fmt.Printf("Case %s initialized at %s\n", caseID, caseFS().CaseDir(caseID))
		return nil
	},
}

func init() {
	initCaseCmd.Flags().StringVar(&caseTitle, "title", "", "Case title")
	rootCmd.AddCommand(initCaseCmd)
}

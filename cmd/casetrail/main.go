// Command casetrail manages investigation cases: registering raw query
// results, ingesting them into a normalized event store, and deriving
// timelines, pivot graphs, and coverage reports.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/casetrail/casetrail/internal/database"
	"github.com/casetrail/casetrail/internal/ingest"
)

var (
	casesRoot string
	driver    string
	dsn       string
	verbose   bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "casetrail",
	Short:         "Normalize security-tool query results into a unified case timeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&casesRoot, "cases-root", "cases", "Directory holding case workspaces")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "sqlite", "Store driver: sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres connection string (postgres driver only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func caseFS() ingest.CaseFS {
	return ingest.CaseFS{Root: casesRoot}
}

// openStore opens the case store: a per-case SQLite file inside the case
// directory, or a shared Postgres database when --dsn is given.
func openStore(caseID string, create bool) (*database.CaseStore, error) {
	target := dsn
	if driver == "sqlite" {
		target = filepath.Join(caseFS().CaseDir(caseID), "case.db")
	} else if dsn == "" {
		return nil, fmt.Errorf("--dsn is required with driver %q", driver)
	}
	if create {
		return database.Create(driver, target)
	}
	return database.Open(driver, target)
}

func service(store *database.CaseStore) *ingest.Service {
	return ingest.NewService(store, caseFS(), logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

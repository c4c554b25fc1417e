package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/criner-dev/criner/pkg/key"
	"github.com/criner-dev/criner/pkg/ledger"
	"github.com/criner-dev/criner/pkg/log"
	"github.com/criner-dev/criner/pkg/model"
	"github.com/criner-dev/criner/pkg/report"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export waste-report summaries from the ledger",
	Long: `export walks every ExplodedCrate result in the ledger, classifies
its archive the same way the "waste" report generator does, and writes
one row per crate-version to stdout or --out, as CSV or JSON.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "csv", "Output format: csv or json")
	exportCmd.Flags().String("out", "", "Output file (default: stdout)")
}

// exportRow is one crate-version's waste-report summary.
type exportRow struct {
	Crate      string `json:"crate"`
	Version    string `json:"version"`
	TotalBytes uint64 `json:"total_bytes"`
	HasWaste   bool   `json:"has_waste"`
	Categories string `json:"waste_categories"`
}

func runExport(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")

	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format %q, must be csv or json", format)
	}

	logger := log.WithComponent("export")

	db, err := ledger.OpenFile(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %v", err)
	}
	defer db.Close()

	total, err := db.Results.Count()
	if err != nil {
		return fmt.Errorf("failed to count results: %v", err)
	}

	bar := pb.StartNew(int(total))
	bar.SetWriter(os.Stderr)

	var rows []exportRow
	err = db.Results.ForEach(func(k string, r model.TaskResult) error {
		defer bar.Increment()
		if r.Kind != model.ResultExplodedCrate || r.ExplodedCrate == nil {
			return nil
		}
		parts := strings.Split(k, string(key.Sep))
		if len(parts) < 2 {
			return nil
		}
		crate, version := parts[0], parts[1]

		rpt := report.Classify(crate, version, *r.ExplodedCrate)
		rows = append(rows, exportRow{
			Crate:      crate,
			Version:    version,
			TotalBytes: rpt.TotalBytes,
			HasWaste:   rpt.HasWaste(),
			Categories: wasteCategories(rpt),
		})
		return nil
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to walk results: %v", err)
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "csv":
		err = writeCSV(out, rows)
	case "json":
		err = writeJSON(out, rows)
	}
	if err != nil {
		return fmt.Errorf("failed to write output: %v", err)
	}

	logger.Info().Int("rows", len(rows)).Str("format", format).Msg("export complete")
	return nil
}

func wasteCategories(rpt report.Report) string {
	var cats []string
	for _, b := range rpt.Breakdown {
		if b.Waste {
			cats = append(cats, string(b.Category))
		}
	}
	return strings.Join(cats, "|")
}

func writeCSV(out *os.File, rows []exportRow) error {
	w := csv.NewWriter(out)
	defer w.Flush()
	if err := w.Write([]string{"crate", "version", "total_bytes", "has_waste", "waste_categories"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.Crate,
			r.Version,
			strconv.FormatUint(r.TotalBytes, 10),
			strconv.FormatBool(r.HasWaste),
			r.Categories,
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(out *os.File, rows []exportRow) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

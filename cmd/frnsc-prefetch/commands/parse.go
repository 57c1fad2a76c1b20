package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ForensicRS/frnsc-prefetch/internal/cli/output"
	"github.com/ForensicRS/frnsc-prefetch/internal/logger"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch/vfs"
)

var (
	parseFormat string
	parseRoot   string
)

var parseCmd = &cobra.Command{
	Use:   "parse [file|dir]...",
	Short: "Parse prefetch artifacts and print the records",
	Long: `Parse prefetch artifacts and print the records.

Arguments are .pf files or directories containing them. With --root, the
argument-free form walks <root>/C/Windows/Prefetch the way an extracted
disk image lays it out.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && parseRoot == "" {
			return fmt.Errorf("provide .pf files, directories, or --root")
		}
		return nil
	},
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "", "output format: table, json or yaml (default from config)")
	parseCmd.Flags().StringVar(&parseRoot, "root", "", "extracted image root containing C/Windows/Prefetch")
}

func runParse(cmd *cobra.Command, args []string) error {
	format := parseFormat
	if format == "" {
		format = cfg.Output.Format
	}
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}

	records, err := collectRecords(prefetch.New(), args)
	if err != nil {
		return err
	}
	return printRecords(cmd.OutOrStdout(), f, records)
}

// collectRecords parses all artifacts named by the CLI arguments plus the
// optional image root. Per-file failures inside directories are logged
// and skipped; a named file failing is an error.
func collectRecords(p *prefetch.Parser, args []string) ([]*prefetch.Record, error) {
	var records []*prefetch.Record

	if parseRoot != "" {
		recs, err := p.ReadDirectory(vfs.NewChroot(parseRoot))
		if err != nil {
			return nil, fmt.Errorf("read prefetch directory under %s: %w", parseRoot, err)
		}
		records = append(records, recs...)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			recs, err := parseArtifactDir(p, arg)
			if err != nil {
				return nil, err
			}
			records = append(records, recs...)
			continue
		}
		rec, err := parseArtifactFile(p, arg)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseArtifactFile(p *prefetch.Parser, path string) (*prefetch.Record, error) {
	f, err := vfs.NewOS().Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.ReadFile(filepath.Base(path), f)
}

func parseArtifactDir(p *prefetch.Parser, dir string) ([]*prefetch.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var records []*prefetch.Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pf") {
			continue
		}
		rec, err := parseArtifactFile(p, filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Info("error processing prefetch", "artifact", e.Name(), "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func printRecords(w io.Writer, f output.Format, records []*prefetch.Record) error {
	switch f {
	case output.FormatJSON:
		return output.PrintJSON(w, records)
	case output.FormatYAML:
		return output.PrintYAML(w, records)
	default:
		return output.PrintTable(w, recordsTable(records))
	}
}

// recordsTable renders one row per record with the fields an examiner
// scans first.
func recordsTable(records []*prefetch.Record) output.TableRenderer {
	table := output.NewTableData("Executable", "Version", "Runs", "Last Run (UTC)", "Hash", "User")
	for _, rec := range records {
		lastRun := ""
		if len(rec.LastRunTimes) > 0 {
			lastRun = rec.LastRunTimes[0].Time().Format("2006-01-02 15:04:05")
		}
		table.AddRow(
			rec.ExecutableName,
			fmt.Sprintf("%d", rec.Version),
			fmt.Sprintf("%d", rec.RunCount),
			lastRun,
			fmt.Sprintf("%08X", rec.Hash),
			rec.User(),
		)
	}
	return table
}

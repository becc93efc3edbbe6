package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask/internal/engine"
)

var exportFormat string

var routineExportCmd = &cobra.Command{
	Use:   "export <routine-id> [file]",
	Short: "Export a routine with its slots to JSON or YAML",
	Long: `Export a routine and its slots as a portable document. Identifiers
and sync markers are stripped so the document can be imported into any
instance. Writes to stdout unless a file is given.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		format := exportFormat
		if len(args) == 2 && !cmd.Flags().Changed("format") {
			format = formatFromPath(args[1])
		}

		data, err := a.eng.ExportRoutine(ctx, args[0], format)
		if err != nil {
			fatal("%v", err)
		}

		if len(args) == 2 {
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				fatal("%v", err)
			}
			fmt.Printf("Exported to %s\n", args[1])
			return
		}
		os.Stdout.Write(data)
	},
}

var routineImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a routine document (works offline)",
	Long: `Import a routine exported by 'routine export'. The routine and its
slots are created fresh, so importing while offline queues them like any
other offline creation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			fatal("%v", err)
		}

		format := exportFormat
		if !cmd.Flags().Changed("format") {
			format = formatFromPath(args[0])
		}

		r, err := a.eng.ImportRoutine(ctx, data, format)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Imported routine %s (%d slots)\n", r.ID, len(r.Slots))
		if r.Pending.IsPending() {
			fmt.Println("Offline: the routine will sync when connectivity returns.")
		}
	},
}

// formatFromPath maps a file extension to an export format, defaulting
// to JSON.
func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return engine.FormatYAML
	default:
		return engine.FormatJSON
	}
}

func init() {
	routineExportCmd.Flags().StringVar(&exportFormat, "format", engine.FormatJSON, "export format: json or yaml")
	routineImportCmd.Flags().StringVar(&exportFormat, "format", engine.FormatJSON, "import format: json or yaml")

	routineCmd.AddCommand(routineExportCmd)
	routineCmd.AddCommand(routineImportCmd)
}

package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kengbailey/transcription-diarization-service/cmd/diarizerd/internal/config"
	"github.com/kengbailey/transcription-diarization-service/pkg/speakerdb"
)

var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "Inspect and manage the speaker registry",
}

var speakersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()

		ids, err := db.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("no speakers enrolled")
			return nil
		}

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{
				id.ID,
				id.Name,
				fmt.Sprintf("%d", id.Samples),
				id.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		fmt.Println(renderTable([]string{"ID", "NAME", "SAMPLES", "CREATED"}, rows))
		return nil
	},
}

var speakersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a speaker and all its voiceprints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openRegistry()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("deleted %s (%d voiceprints)\n", args[0], n)
		return nil
	},
}

func init() {
	speakersCmd.AddCommand(speakersListCmd)
	speakersCmd.AddCommand(speakersDeleteCmd)
}

func openRegistry() (*speakerdb.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return speakerdb.Open(speakerdb.Options{
		Dir:       cfg.Registry.Dir,
		Dimension: cfg.Registry.Dimension,
	})
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	tableCellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// renderTable lays out rows under a styled header with aligned columns.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range header {
		b.WriteString(tableHeaderStyle.Render(pad(h, widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(tableCellStyle.Render(pad(cell, widths[i])))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

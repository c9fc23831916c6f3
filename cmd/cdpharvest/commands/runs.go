package commands

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cdpharvest/pkg/api"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "显示的运行数量")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit <n>]",
	Short: "列出历史采集运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc := api.NewService(api.Options{Logger: newLogger(cfg)})
		runs, err := svc.Runs(cmd.Context(), cfg, runsLimit)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Run", "Started", "Duration", "List", "Pages", "Entities", "Skipped", "Records", "Error"})
		for _, r := range runs {
			dur := "-"
			if r.FinishedAt != nil {
				dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			t.AppendRow(table.Row{r.ID, r.StartedAt.Format(time.DateTime), dur, r.ListState, r.Pages, r.Entities, r.Skipped, r.Records, r.Error})
		}
		t.Render()
		return nil
	},
}

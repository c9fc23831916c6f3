package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cdpharvest/pkg/api"
)

var targetsDevtools string

func init() {
	targetsCmd.Flags().StringVar(&targetsDevtools, "devtools", "", "浏览器调试端点，覆盖 devtools.url")
	rootCmd.AddCommand(targetsCmd)
}

var targetsCmd = &cobra.Command{
	Use:   "targets [--devtools <url>]",
	Short: "列出浏览器中打开的页面目标",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		url := cfg.DevTools.URL
		if targetsDevtools != "" {
			url = targetsDevtools
		}
		svc := api.NewService(api.Options{Logger: newLogger(cfg)})
		targets, err := svc.Targets(cmd.Context(), url)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"ID", "Type", "Title", "URL"})
		for _, tg := range targets {
			t.AppendRow(table.Row{tg.ID, tg.Type, tg.Title, tg.URL})
		}
		t.Render()
		return nil
	},
}

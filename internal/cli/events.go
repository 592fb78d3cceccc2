package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/nao1215/yjdh/internal/linkedevents"
	"github.com/spf13/cobra"
)

// newEventsCmd はTETイベントに関するコマンドを生成する。
func newEventsCmd(a *app) *cobra.Command {
	var filter linkedevents.ListFilter

	list := &cobra.Command{
		Use:     "list",
		Short:   "公開中を含むTETイベントを一覧表示する",
		Example: color.GreenString("yjdhctl events list --publisher ahjo:u48040030"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listEvents(cmd, filter)
		},
	}
	list.Flags().StringVar(&filter.Publisher, "publisher", "", "公開組織で絞り込む")
	list.Flags().StringVar(&filter.Text, "text", "", "テキストで絞り込む")

	cmd := &cobra.Command{
		Use:   "events",
		Short: "TETイベントを扱う",
	}
	cmd.AddCommand(list)
	return cmd
}

// listEvents はイベントをページ単位で取得しながら表示する。
func (a *app) listEvents(cmd *cobra.Command, filter linkedevents.ListFilter) error {
	client, err := linkedevents.NewClient(a.cfg.LinkedEvents, a.logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNIMI\tALKAA\tPÄÄTTYY")
	count := 0
	for ev, err := range client.Events(cmd.Context(), filter) {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.ID, ev.Name["fi"], deref(ev.StartTime), deref(ev.EndTime))
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("%d tapahtumaa", count))
	return nil
}

// deref はnilの場合に "-" を返す。
func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

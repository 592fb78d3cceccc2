package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/nao1215/yjdh/internal/linkedevents"
	"github.com/nao1215/yjdh/internal/tet"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// newImagesCmd は画像に関するコマンドを生成する。
func newImagesCmd(a *app) *cobra.Command {
	var dryRun bool

	clean := &cobra.Command{
		Use:     "clean",
		Short:   "どのイベントからも参照されていない画像を削除する",
		Example: color.GreenString("yjdhctl images clean --dry-run"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.cleanImages(cmd, dryRun)
		},
	}
	clean.Flags().BoolVar(&dryRun, "dry-run", false, "削除せずに対象の件数のみ表示する")

	cmd := &cobra.Command{
		Use:   "images",
		Short: "LinkedEventsの画像を扱う",
	}
	cmd.AddCommand(clean)
	return cmd
}

// cleanImages は未使用の画像を削除し、確認の進捗をプログレスバーで表示する。
func (a *app) cleanImages(cmd *cobra.Command, dryRun bool) error {
	client, err := linkedevents.NewClient(a.cfg.LinkedEvents, a.logger)
	if err != nil {
		return err
	}

	p := mpb.NewWithContext(cmd.Context(), mpb.WithOutput(cmd.ErrOrStderr()), mpb.WithWidth(60))
	// 総数は最後のページまで分からないため、ページごとに総数を伸ばす
	bar := p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name("Checking images", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done")),
	)

	result, err := tet.NewImageCleaner(client, a.logger, dryRun).Run(cmd.Context(), func(r tet.CleanResult) {
		bar.SetTotal(int64(r.Checked), false)
		bar.SetCurrent(int64(r.Checked))
	})
	if err != nil {
		bar.Abort(false)
		p.Wait()
		return err
	}
	bar.SetTotal(-1, true)
	p.Wait()

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, color.YellowString("dry-run: %d / %d images would be deleted", result.Deleted, result.Checked))
		return nil
	}
	fmt.Fprintln(out, color.GreenString("Finished! Deleted %d out of %d images", result.Deleted, result.Checked))
	return nil
}

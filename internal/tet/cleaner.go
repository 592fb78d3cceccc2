package tet

import (
	"context"
	"fmt"

	"github.com/nao1215/yjdh/internal/linkedevents"
	"go.uber.org/zap"
)

// ImageCleaner はどのイベントからも参照されていない画像をLinkedEventsから削除する。
type ImageCleaner struct {
	// events はLinkedEventsクライアント。
	events *linkedevents.Client
	// logger はログ出力先。
	logger *zap.Logger
	// dryRun がtrueの場合は削除せずに件数のみ数える。
	dryRun bool
}

// NewImageCleaner は新しいImageCleanerを生成する。
func NewImageCleaner(events *linkedevents.Client, logger *zap.Logger, dryRun bool) *ImageCleaner {
	return &ImageCleaner{events: events, logger: logger, dryRun: dryRun}
}

// CleanResult は削除処理の結果。
type CleanResult struct {
	// Checked は確認した画像の数。
	Checked int
	// Deleted は削除した（dryRunでは削除対象となった）画像の数。
	Deleted int
}

// Run は未使用の画像を削除する。onPageは画像1ページを処理するたびに呼ばれる。
func (ic *ImageCleaner) Run(ctx context.Context, onPage func(CleanResult)) (CleanResult, error) {
	used := make(map[string]struct{})
	for ev, err := range ic.events.Events(ctx, linkedevents.ListFilter{}) {
		if err != nil {
			return CleanResult{}, fmt.Errorf("イベント一覧の取得に失敗: %w", err)
		}
		for _, id := range ev.ImageIDs() {
			used[id] = struct{}{}
		}
	}

	// 一覧の途中で削除するとページの境界がずれるため、全ページを確認してから削除する
	var unused []string
	var result CleanResult
	for images, err := range ic.events.Images(ctx) {
		if err != nil {
			return result, fmt.Errorf("画像一覧の取得に失敗: %w", err)
		}
		for _, img := range images {
			result.Checked++
			if _, ok := used[img.ID.String()]; !ok {
				unused = append(unused, img.ID.String())
			}
		}
		if onPage != nil {
			onPage(result)
		}
	}

	for _, id := range unused {
		if !ic.dryRun {
			if err := ic.events.DeleteImage(ctx, id); err != nil {
				return result, fmt.Errorf("画像 %s の削除に失敗: %w", id, err)
			}
		}
		result.Deleted++
		ic.logger.Info("未使用の画像を削除しました", zap.String("image_id", id), zap.Bool("dry_run", ic.dryRun))
	}
	return result, nil
}

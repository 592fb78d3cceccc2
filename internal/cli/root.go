// Package cli はyjdhctlのサブコマンドを提供する。
// 各サービスと同じ設定と上流クライアントを使い、運用作業を端末から実行する。
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/nao1215/yjdh/pkg/config"
	"github.com/nao1215/yjdh/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version はyjdhctlのバージョン。
const version = "0.3.0"

// defaultConfigName はホームディレクトリで探す設定ファイル名。
const defaultConfigName = ".yjdhctl.yaml"

// app はサブコマンド間で共有する実行時の状態。
type app struct {
	// cfgFile は--configで指定された設定ファイル。
	cfgFile string
	// verbose がtrueの場合はログを標準エラーに出力する。
	verbose bool
	// cfg は読み込んだ設定。
	cfg config.Config
	// logger はログ出力先。
	logger *zap.Logger
}

// NewRootCmd はyjdhctlのルートコマンドを生成する。
func NewRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "yjdhctl",
		Version:       version,
		Short:         "YJDHバックエンドの運用ツール",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "設定ファイル（既定: ~/"+defaultConfigName+"）")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "ログを標準エラーに出力する")

	root.AddCommand(newCompanyCmd(a), newEventsCmd(a), newImagesCmd(a))
	return root
}

// Execute はルートコマンドを実行し、エラーを表示して終了コードを返す。
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("yjdhctl exited because an error occurred:"))
		fmt.Fprintln(os.Stderr, color.YellowString("%s", err))
		return 1
	}
	return 0
}

// load は設定とロガーを読み込む。
func (a *app) load() error {
	file, err := a.configFile()
	if err != nil {
		return err
	}
	cfg, err := config.Load(file)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.verbose {
		l, err := logger.New(cfg.Server.Env)
		if err != nil {
			return err
		}
		a.logger = l
	}
	return nil
}

// configFile は読み込む設定ファイルのパスを返す。
// 指定が無くホームディレクトリにも無い場合は空文字列を返し、環境変数のみを使う。
func (a *app) configFile() (string, error) {
	if a.cfgFile != "" {
		return homedir.Expand(a.cfgFile)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("ホームディレクトリの取得に失敗: %w", err)
	}
	path := filepath.Join(home, defaultConfigName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("設定ファイルの確認に失敗: %w", err)
	}
	return path, nil
}

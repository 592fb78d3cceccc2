// yjdhctlのエントリポイント。
// 企業情報の取得、TETイベントの一覧、未使用画像の削除を端末から実行する。
package main

import (
	"os"

	"github.com/nao1215/yjdh/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

package app

import (
	"fmt"
	"strings"
)

// Command はcoursegptバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe はREST APIサーバーを起動する。引数なしの場合の既定値。
	CommandServe Command = "serve"
	// CommandWorker は参照整合性スイープを定期実行するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はSTORE_DRIVERに応じたスキーマ準備（マイグレーション/インデックス作成）を行う。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のプロセスの/healthを確認する。
	// curlを持たないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// commands はサブコマンドと説明の一覧。表示順を保つためスライスで持つ。
var commands = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "start the CourseGPT REST API (default)"},
	{CommandWorker, "run the periodic reference consistency sweep"},
	{CommandMigrate, "prepare the store schema (postgres migrations, mongo indexes)"},
	{CommandHealthcheck, "check /health on SERVER_PORT and exit non-zero when unhealthy"},
	{CommandHelp, "show this message"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを決定する。
// 2つ目以降の引数は無視する。引数なし・未知のコマンドはCommandServeになる。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	name := strings.ToLower(strings.TrimSpace(args[0]))
	switch name {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd
		}
	}
	return CommandServe
}

// Usage はcoursegptの使い方を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: coursegpt [command]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.summary)
	}
	b.WriteString("\nConfiguration is read from the environment and an optional .env file.\n")
	return b.String()
}

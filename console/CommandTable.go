package console

import (
	"fmt"
	"strings"

	"github.com/c-bata/go-prompt"
)

// CommandDefinition はコマンドの定義を保持する構造体
type CommandDefinition struct {
	Name              string                                              // コマンド名
	Aliases           []string                                            // 別名
	Summary           string                                              // 概要（短い説明）
	Syntax            string                                              // 構文
	Description       []string                                            // 詳細説明（各行が1つの要素）
	ParseFunc         func(parts []string) (*Command, error)              // パース関数
	GetCandidatesFunc func(inv Inverter, words []string) []prompt.Suggest // 補完候補生成関数
}

// CommandTable はコマンドの定義を格納するテーブル
var CommandTable = []CommandDefinition{
	{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "現在の値の一覧表示",
		Syntax:  "list [prefix] [-all]",
		Description: []string{
			"prefix: キーの先頭で絞り込み（例: battery）",
			"-all: 既定で非表示のエンティティも表示",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			cmd := newCommand(CmdList)
			for _, p := range parts[1:] {
				switch {
				case p == "":
				case p == "-all":
					cmd.All = true
				case strings.HasPrefix(p, "-"):
					return nil, fmt.Errorf("不明なオプション: %s", p)
				case cmd.Prefix != "":
					return nil, fmt.Errorf("prefix は1つだけ指定できます")
				default:
					cmd.Prefix = p
				}
			}
			return cmd, nil
		},
		GetCandidatesFunc: func(inv Inverter, words []string) []prompt.Suggest {
			return []prompt.Suggest{{Text: "-all", Description: "非表示のエンティティも表示"}}
		},
	},
	{
		Name:    "get",
		Summary: "値の表示",
		Syntax:  "get key1 [key2...]",
		Description: []string{
			"最後に読み出した値を単位付きで表示します。",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			cmd := newCommand(CmdGet)
			for _, p := range parts[1:] {
				if p != "" {
					cmd.Keys = append(cmd.Keys, p)
				}
			}
			if len(cmd.Keys) == 0 {
				return nil, fmt.Errorf("キーを指定してください")
			}
			return cmd, nil
		},
		GetCandidatesFunc: func(inv Inverter, words []string) []prompt.Suggest {
			return keyCandidates(inv, false)
		},
	},
	{
		Name:    "set",
		Summary: "値の書き込み",
		Syntax:  "set key value",
		Description: []string{
			"number: 数値。単位を付けてもよい（例: 25.5A）",
			"select: ラベルかコード（例: Back Up Mode, 2）",
			"書き込み後に読み返した値を表示します。",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			if len(parts) < 3 || parts[1] == "" || strings.TrimSpace(strings.Join(parts[2:], " ")) == "" {
				return nil, fmt.Errorf("使い方: set key value")
			}
			cmd := newCommand(CmdSet)
			cmd.Key = parts[1]
			cmd.Value = strings.TrimSpace(strings.Join(parts[2:], " "))
			return cmd, nil
		},
		GetCandidatesFunc: func(inv Inverter, words []string) []prompt.Suggest {
			if len(words) <= 2 {
				return keyCandidates(inv, true)
			}
			return optionCandidates(inv, words[1])
		},
	},
	{
		Name:    "catalog",
		Summary: "エンティティ定義の表示",
		Syntax:  "catalog [prefix]",
		Description: []string{
			"種別・レジスタ・範囲・選択肢を表示します。",
		},
		ParseFunc: func(parts []string) (*Command, error) {
			cmd := newCommand(CmdCatalog)
			if len(parts) > 1 {
				cmd.Prefix = parts[1]
			}
			return cmd, nil
		},
	},
	{
		Name:    "refresh",
		Summary: "すぐに読み出す",
		Syntax:  "refresh",
		ParseFunc: func(parts []string) (*Command, error) {
			return newCommand(CmdRefresh), nil
		},
	},
	{
		Name:    "status",
		Summary: "接続状態の表示",
		Syntax:  "status",
		ParseFunc: func(parts []string) (*Command, error) {
			return newCommand(CmdStatus), nil
		},
	},
	{
		Name:    "help",
		Summary: "ヘルプの表示",
		Syntax:  "help [command]",
		ParseFunc: func(parts []string) (*Command, error) {
			cmd := newCommand(CmdHelp)
			if len(parts) > 1 {
				cmd.Topic = parts[1]
			}
			return cmd, nil
		},
		// 候補はコマンド名。CommandTable を参照するので Completer 側で返す
	},
	{
		Name:    "quit",
		Aliases: []string{"exit"},
		Summary: "終了",
		Syntax:  "quit",
		ParseFunc: func(parts []string) (*Command, error) {
			return newCommand(CmdQuit), nil
		},
	},
}

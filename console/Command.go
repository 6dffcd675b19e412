package console

import (
	"fmt"
	"strings"
)

// コマンドの種類を表す型
type CommandType int

const (
	CmdUnknown CommandType = iota
	CmdQuit
	CmdHelp
	CmdList
	CmdGet
	CmdSet
	CmdCatalog
	CmdRefresh
	CmdStatus
)

// コマンドを表す構造体
type Command struct {
	Type   CommandType
	Keys   []string // get の対象
	Key    string   // set の対象
	Value  string   // set の値。ラベルは空白を含んでもよい
	Prefix string   // list / catalog の絞り込み
	All    bool     // list -all: 非表示エンティティも出す
	Topic  string   // help の対象コマンド
	Done   chan struct{}
	Error  error
}

func newCommand(t CommandType) *Command {
	return &Command{Type: t, Done: make(chan struct{})}
}

// ParseCommand は入力行をコマンドに変換する。空行は nil を返す
func ParseCommand(line string) (*Command, error) {
	parts := splitWords(strings.TrimSpace(line))
	if len(parts) == 0 || parts[0] == "" {
		return nil, nil
	}

	def, ok := findCommand(parts[0])
	if !ok {
		return nil, fmt.Errorf("不明なコマンド: %s", parts[0])
	}
	return def.ParseFunc(parts)
}

// findCommand は名前か別名でコマンド定義を探す
func findCommand(name string) (CommandDefinition, bool) {
	for _, def := range CommandTable {
		if def.Name == name {
			return def, true
		}
		for _, alias := range def.Aliases {
			if alias == name {
				return def, true
			}
		}
	}
	return CommandDefinition{}, false
}

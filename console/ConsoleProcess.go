package console

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
)

const historyFileName = ".solax_modbus_history"

// ConsoleProcess は quit か EOF まで対話コマンドを処理する
func ConsoleProcess(ctx context.Context, inverter Inverter) {
	processor := NewCommandProcessor(ctx, inverter, os.Stdout)
	processor.Start()
	defer processor.Stop()

	fmt.Println("help for usage, quit to exit")

	historyFile := historyFileName
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, historyFileName)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile,
		AutoComplete:    &dynamicCompleter{inverter: inverter},
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Printf("readline の初期化エラー: %v\n", err)
		return
	}
	defer func() {
		_ = rl.Close()
	}()

	// ctx が終わったら Readline を中断する
	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF, readline.ErrInterrupt
			return
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			fmt.Printf("エラー: %v\n", err)
			continue
		}
		if cmd == nil {
			continue
		}
		if cmd.Type == CmdQuit {
			return
		}

		if err := processor.SendCommand(cmd); err != nil {
			fmt.Printf("エラー: %v\n", err)
		}
	}
}

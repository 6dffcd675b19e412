package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"solax-modbus/hub"
	"solax-modbus/solax"

	"golang.org/x/exp/slices"
)

// Inverter はコンソールから操作するインバーター。*hub.Hub が実装する
type Inverter interface {
	Catalog() *solax.Catalog
	Snapshot() hub.Snapshot
	Online() bool
	SetString(ctx context.Context, key string, s string) error
	Poll(ctx context.Context) error
}

// CommandProcessor は、コマンド処理を担当する構造体
type CommandProcessor struct {
	inverter Inverter
	out      io.Writer
	cmdChan  chan *Command
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCommandProcessor は、CommandProcessor の新しいインスタンスを作成する
func NewCommandProcessor(ctx context.Context, inverter Inverter, out io.Writer) *CommandProcessor {
	processorCtx, cancel := context.WithCancel(ctx)

	return &CommandProcessor{
		inverter: inverter,
		out:      out,
		cmdChan:  make(chan *Command),
		done:     make(chan struct{}),
		ctx:      processorCtx,
		cancel:   cancel,
	}
}

// Start は、コマンド処理を開始する
func (p *CommandProcessor) Start() {
	go p.processCommands()
}

// Stop は、コマンド処理を停止し goroutine の終了を待つ
func (p *CommandProcessor) Stop() {
	p.cancel()
	<-p.done
}

// SendCommand は、コマンドを送信し、実行結果のエラーを返す
func (p *CommandProcessor) SendCommand(cmd *Command) error {
	select {
	case p.cmdChan <- cmd:
	case <-p.done:
		return errors.New("コマンド処理は終了しています")
	}
	<-cmd.Done
	return cmd.Error
}

// processCommands は、コマンドを処理するgoroutine
func (p *CommandProcessor) processCommands() {
	defer close(p.done)

	for {
		var cmd *Command
		select {
		case <-p.ctx.Done():
			return
		case cmd = <-p.cmdChan:
		}

		switch cmd.Type {
		case CmdQuit:
			close(cmd.Done)
			return
		case CmdHelp:
			cmd.Error = PrintUsage(p.out, cmd.Topic)
		case CmdList:
			p.processListCommand(cmd)
		case CmdGet:
			cmd.Error = p.processGetCommand(cmd)
		case CmdSet:
			cmd.Error = p.processSetCommand(cmd)
		case CmdCatalog:
			p.processCatalogCommand(cmd)
		case CmdRefresh:
			cmd.Error = p.inverter.Poll(p.ctx)
			if cmd.Error == nil {
				fmt.Fprintln(p.out, "読み出しました")
			}
		case CmdStatus:
			p.processStatusCommand()
		default:
			cmd.Error = fmt.Errorf("未実装のコマンド: %v", cmd.Type)
		}
		close(cmd.Done)
	}
}

func (p *CommandProcessor) processListCommand(cmd *Command) {
	snapshot := p.inverter.Snapshot()
	for _, e := range p.inverter.Catalog().Entities() {
		if !strings.HasPrefix(e.Key, cmd.Prefix) {
			continue
		}
		if e.Meta.DisabledDefault && !cmd.All {
			continue
		}
		fmt.Fprintf(p.out, "%s: %s\n", e.Key, valueOf(snapshot, e.Key).StringWithUnit())
	}
}

func (p *CommandProcessor) processGetCommand(cmd *Command) error {
	catalog := p.inverter.Catalog()
	for _, key := range cmd.Keys {
		if _, ok := catalog.Lookup(key); !ok {
			return fmt.Errorf("不明なキー: %s", key)
		}
	}
	snapshot := p.inverter.Snapshot()
	for _, key := range cmd.Keys {
		fmt.Fprintf(p.out, "%s: %s\n", key, valueOf(snapshot, key).StringWithUnit())
	}
	return nil
}

func (p *CommandProcessor) processSetCommand(cmd *Command) error {
	if err := p.inverter.SetString(p.ctx, cmd.Key, cmd.Value); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "%s: %s\n", cmd.Key, valueOf(p.inverter.Snapshot(), cmd.Key).StringWithUnit())
	return nil
}

func (p *CommandProcessor) processCatalogCommand(cmd *Command) {
	catalog := p.inverter.Catalog()
	fmt.Fprintf(p.out, "capability: %s (subsets: %s)\n", catalog.Flags(), strings.Join(catalog.Subsets(), ", "))
	for _, e := range catalog.Entities() {
		if strings.HasPrefix(e.Key, cmd.Prefix) {
			fmt.Fprintln(p.out, describeEntity(catalog, e))
		}
	}
}

func (p *CommandProcessor) processStatusCommand() {
	state := "offline"
	if p.inverter.Online() {
		state = "online"
	}
	snapshot := p.inverter.Snapshot()
	last := "-"
	if !snapshot.Time.IsZero() {
		last = snapshot.Time.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(p.out, "inverter: %s, last read: %s, capability: %s\n", state, last, p.inverter.Catalog().Flags())
}

func valueOf(snapshot hub.Snapshot, key string) solax.Value {
	if v, ok := snapshot.Values[key]; ok {
		return v
	}
	return solax.Unavailable
}

// describeEntity は catalog コマンドの1行を作る
func describeEntity(catalog *solax.Catalog, e solax.EntityDesc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s/%s]", e.Key, e.Kind(), catalog.Origin(e.Key))
	if e.Register != nil {
		fmt.Fprintf(&b, " %s", e.Register.Address)
		if n := e.Register.WordCount(); n > 1 {
			fmt.Fprintf(&b, "+%d", n-1)
		}
	} else {
		b.WriteString(" derived")
	}
	if n, ok := e.Spec.(solax.NumberDesc); ok {
		fmt.Fprintf(&b, " %v..%v step %v", n.Min, n.Max, n.Step)
	}
	if e.Meta.Unit != "" {
		fmt.Fprintf(&b, " (%s)", e.Meta.Unit)
	}
	if options := e.Options(); len(options) > 0 {
		codes := make([]int, 0, len(options))
		for code := range options {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		labels := make([]string, 0, len(codes))
		for _, code := range codes {
			labels = append(labels, fmt.Sprintf("%d=%s", code, options[code]))
		}
		fmt.Fprintf(&b, " {%s}", strings.Join(labels, ", "))
	}
	return b.String()
}

// PrintUsage はコマンドの使い方を表示する。topic が空なら一覧
func PrintUsage(out io.Writer, topic string) error {
	if topic != "" {
		def, ok := findCommand(topic)
		if !ok {
			return fmt.Errorf("不明なコマンド: %s", topic)
		}
		fmt.Fprintf(out, "%s\n  %s\n", def.Syntax, def.Summary)
		for _, line := range def.Description {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return nil
	}
	for _, def := range CommandTable {
		fmt.Fprintf(out, "  %-24s %s\n", def.Syntax, def.Summary)
	}
	return nil
}

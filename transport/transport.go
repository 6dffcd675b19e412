package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"solax-modbus/solax"
	"solax-modbus/solax/utils"

	"github.com/goburrow/modbus"
)

// RegisterClient is the part of modbus.Client the transport uses.
type RegisterClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Options describes how to reach the inverter.
type Options struct {
	Mode     string // "tcp" or "rtu"
	Address  string
	UnitID   byte
	Timeout  time.Duration
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

// Transport serializes register access to one inverter.
type Transport struct {
	mu     sync.Mutex
	client RegisterClient
	closer io.Closer
}

// New wraps an already connected client.
func New(client RegisterClient) *Transport {
	return &Transport{client: client}
}

// Dial connects to the inverter over Modbus TCP or RTU.
func Dial(opts Options) (*Transport, error) {
	switch opts.Mode {
	case "tcp":
		handler := modbus.NewTCPClientHandler(opts.Address)
		handler.Timeout = opts.Timeout
		handler.SlaveId = opts.UnitID
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("Modbus TCP 接続に失敗: %w", err)
		}
		return &Transport{client: modbus.NewClient(handler), closer: handler}, nil

	case "rtu":
		handler := modbus.NewRTUClientHandler(opts.Address)
		handler.BaudRate = opts.BaudRate
		handler.DataBits = opts.DataBits
		handler.Parity = opts.Parity
		handler.StopBits = opts.StopBits
		handler.SlaveId = opts.UnitID
		handler.Timeout = opts.Timeout
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("シリアルポートを開けませんでした: %w", err)
		}
		return &Transport{client: modbus.NewClient(handler), closer: handler}, nil
	}
	return nil, fmt.Errorf("unknown modbus mode %q", opts.Mode)
}

func (t *Transport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Read executes the plan. A failed block is logged and its registers stay
// absent from the result; an error is returned only when every block failed.
func (t *Transport) Read(ctx context.Context, plan Plan) (solax.Registers, error) {
	regs := solax.Registers{}
	var errs []error
	for _, block := range plan {
		if err := ctx.Err(); err != nil {
			return regs, err
		}
		words, err := t.readBlock(block)
		if err != nil {
			slog.Warn("ブロックの読み出しに失敗", "block", block, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", block, err))
			continue
		}
		regs.Put(solax.Address{Table: block.Table, Offset: block.Start}, words...)
	}
	if len(plan) > 0 && len(errs) == len(plan) {
		return regs, errors.Join(errs...)
	}
	return regs, nil
}

func (t *Transport) readBlock(block Block) ([]uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var data []byte
	var err error
	switch block.Table {
	case solax.HoldingTable:
		data, err = t.client.ReadHoldingRegisters(block.Start, block.Count)
	case solax.InputTable:
		data, err = t.client.ReadInputRegisters(block.Start, block.Count)
	default:
		return nil, fmt.Errorf("unknown register table %s", block.Table)
	}
	if err != nil {
		return nil, err
	}
	if len(data) != int(block.Count)*2 {
		return nil, fmt.Errorf("応答の長さが不正です: %d バイト (期待値 %d)", len(data), int(block.Count)*2)
	}
	return utils.BytesToWords(data), nil
}

// Write stores w. One word uses function 0x06, more words use 0x10.
func (t *Transport) Write(ctx context.Context, w solax.RegisterWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.Address.Table != solax.HoldingTable {
		return fmt.Errorf("cannot write to %s", w.Address)
	}
	if len(w.Words) == 0 {
		return fmt.Errorf("empty write to %s", w.Address)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if len(w.Words) == 1 {
		_, err = t.client.WriteSingleRegister(w.Address.Offset, w.Words[0])
	} else {
		_, err = t.client.WriteMultipleRegisters(w.Address.Offset, uint16(len(w.Words)), utils.WordsToBytes(w.Words))
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", w, err)
	}
	slog.Debug("レジスタに書き込みました", "write", w.String())
	return nil
}

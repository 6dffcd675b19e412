package transport

import (
	"fmt"
	"slices"

	"solax-modbus/solax"
)

const (
	// MaxGap は1ブロックにまとめる際に読み飛ばしてよい未使用ワード数
	MaxGap = 8
	// MaxBlock は1リクエストで読むワード数の上限
	MaxBlock = 100
)

// Block is one contiguous read request.
type Block struct {
	Table solax.RegisterTable
	Start uint16
	Count uint16
}

func (b Block) String() string {
	return fmt.Sprintf("%s:0x%04X+%d", b.Table, b.Start, b.Count)
}

// End is the last offset covered by the block.
func (b Block) End() uint16 {
	return b.Start + b.Count - 1
}

// Plan is the ordered list of reads that covers a catalog.
type Plan []Block

// PlanReads groups every register the catalog decodes into as few block
// reads as possible. Holding blocks come before input blocks.
func PlanReads(catalog *solax.Catalog) Plan {
	offsets := map[solax.RegisterTable][]uint16{}
	for _, e := range catalog.Entities() {
		if e.Register == nil {
			continue
		}
		for _, a := range e.Register.Addresses() {
			offsets[a.Table] = append(offsets[a.Table], a.Offset)
		}
	}

	var plan Plan
	for _, table := range []solax.RegisterTable{solax.HoldingTable, solax.InputTable} {
		addrs := offsets[table]
		slices.Sort(addrs)
		addrs = slices.Compact(addrs)
		plan = append(plan, mergeBlocks(table, addrs)...)
	}
	return plan
}

func mergeBlocks(table solax.RegisterTable, sorted []uint16) []Block {
	var blocks []Block
	for _, a := range sorted {
		if n := len(blocks); n > 0 {
			b := &blocks[n-1]
			gap := int(a) - int(b.End()) - 1
			if gap <= MaxGap && int(a)-int(b.Start)+1 <= MaxBlock {
				b.Count = a - b.Start + 1
				continue
			}
		}
		blocks = append(blocks, Block{Table: table, Start: a, Count: 1})
	}
	return blocks
}

// Words is the total number of registers the plan reads.
func (p Plan) Words() int {
	n := 0
	for _, b := range p {
		n += int(b.Count)
	}
	return n
}

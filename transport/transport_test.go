package transport

import (
	"context"
	"errors"
	"testing"

	"solax-modbus/solax"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockClient は RegisterClient のモック実装
type mockClient struct {
	mock.Mock
}

func (m *mockClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	args := m.Called(address, quantity)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	args := m.Called(address, quantity)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	args := m.Called(address, value)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	args := m.Called(address, quantity, value)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func sensor(key string, reg *solax.Register) solax.EntityDesc {
	return solax.EntityDesc{Key: key, Register: reg, Spec: solax.SensorDesc{Encoding: solax.EncodingInteger}}
}

func u16(a solax.Address) *solax.Register { return &solax.Register{Address: a} }

func newCatalog(t *testing.T, entities ...solax.EntityDesc) *solax.Catalog {
	t.Helper()
	catalog, err := solax.NewCatalog(0, []solax.Subset{{Name: "test", Entities: entities}})
	require.NoError(t, err)
	return catalog
}

func TestPlanReads(t *testing.T) {
	catalog := newCatalog(t,
		sensor("h", u16(solax.Holding(0x10))),
		sensor("a", u16(solax.Input(0x00))),
		sensor("b", u16(solax.Input(0x01))),
		sensor("c", u16(solax.Input(0x05))),
		sensor("d", u16(solax.Input(0x20))),
		sensor("e", &solax.Register{Address: solax.Input(0x30), Words: 2}),
		// 間隔がちょうど MaxGap なら結合する
		sensor("f", u16(solax.Input(0x40))),
		sensor("g", u16(solax.Input(0x49))),
		// MaxGap を超えたら分ける
		sensor("i", u16(solax.Input(0x60))),
		sensor("j", u16(solax.Input(0x6A))),
		// 同じアドレスは1回だけ読む
		sensor("k", u16(solax.Input(0x6A))),
	)

	want := Plan{
		{Table: solax.HoldingTable, Start: 0x10, Count: 1},
		{Table: solax.InputTable, Start: 0x00, Count: 6},
		{Table: solax.InputTable, Start: 0x20, Count: 1},
		{Table: solax.InputTable, Start: 0x30, Count: 2},
		{Table: solax.InputTable, Start: 0x40, Count: 10},
		{Table: solax.InputTable, Start: 0x60, Count: 1},
		{Table: solax.InputTable, Start: 0x6A, Count: 1},
	}
	if diff := cmp.Diff(want, PlanReads(catalog)); diff != "" {
		t.Errorf("PlanReads mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanReads_BlockCap(t *testing.T) {
	var entities []solax.EntityDesc
	for i := range 31 {
		entities = append(entities, sensor(string(rune('A'+i)), u16(solax.Input(uint16(0x300+5*i)))))
	}
	plan := PlanReads(newCatalog(t, entities...))

	want := Plan{
		{Table: solax.InputTable, Start: 0x300, Count: 96},
		{Table: solax.InputTable, Start: 0x300 + 100, Count: 51},
	}
	assert.Equal(t, want, plan)
}

func TestPlanReads_BuiltinCoversEveryRegister(t *testing.T) {
	_, catalog, err := solax.Resolve(solax.ResolverConfig{ReadGen3X3: true, ReadX3EPS: true})
	require.NoError(t, err)
	plan := PlanReads(catalog)

	covered := func(a solax.Address) bool {
		for _, b := range plan {
			if b.Table == a.Table && a.Offset >= b.Start && a.Offset <= b.End() {
				return true
			}
		}
		return false
	}
	for _, b := range plan {
		assert.LessOrEqual(t, int(b.Count), MaxBlock, b.String())
	}
	for _, e := range catalog.Entities() {
		if e.Register == nil {
			continue
		}
		for _, a := range e.Register.Addresses() {
			assert.True(t, covered(a), "%s %s", e.Key, a)
		}
	}
}

func TestTransport_Read(t *testing.T) {
	client := &mockClient{}
	client.On("ReadHoldingRegisters", uint16(0x10), uint16(2)).Return([]byte{0x00, 0x2A, 0x01, 0x00}, nil)
	client.On("ReadInputRegisters", uint16(0x00), uint16(3)).Return(nil, errors.New("exception 2"))
	client.On("ReadInputRegisters", uint16(0x20), uint16(1)).Return([]byte{0xFF}, nil) // 長さ不正
	tr := New(client)

	plan := Plan{
		{Table: solax.HoldingTable, Start: 0x10, Count: 2},
		{Table: solax.InputTable, Start: 0x00, Count: 3},
		{Table: solax.InputTable, Start: 0x20, Count: 1},
	}
	regs, err := tr.Read(context.Background(), plan)
	require.NoError(t, err)

	want := solax.Registers{
		solax.Holding(0x10): 0x002A,
		solax.Holding(0x11): 0x0100,
	}
	assert.Equal(t, want, regs)
	client.AssertExpectations(t)
}

func TestTransport_ReadAllBlocksFail(t *testing.T) {
	client := &mockClient{}
	client.On("ReadInputRegisters", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	tr := New(client)

	regs, err := tr.Read(context.Background(), Plan{
		{Table: solax.InputTable, Start: 0x00, Count: 3},
		{Table: solax.InputTable, Start: 0x20, Count: 1},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Empty(t, regs)
}

func TestTransport_ReadCancelled(t *testing.T) {
	client := &mockClient{}
	tr := New(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Read(ctx, Plan{{Table: solax.InputTable, Start: 0, Count: 1}})
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNotCalled(t, "ReadInputRegisters", mock.Anything, mock.Anything)
}

func TestTransport_Write(t *testing.T) {
	client := &mockClient{}
	client.On("WriteSingleRegister", uint16(0x20), uint16(99)).Return([]byte{0x00, 0x63}, nil)
	client.On("WriteMultipleRegisters", uint16(0x12), uint16(2), []byte{0x11, 0x70, 0x00, 0x01}).Return([]byte{0x00, 0x02}, nil)
	tr := New(client)

	ctx := context.Background()
	require.NoError(t, tr.Write(ctx, solax.RegisterWrite{Address: solax.Holding(0x20), Words: []uint16{99}}))
	require.NoError(t, tr.Write(ctx, solax.RegisterWrite{Address: solax.Holding(0x12), Words: []uint16{0x1170, 0x0001}}))
	client.AssertExpectations(t)

	// 入力レジスタや空の書き込みはデバイスに送らない
	assert.Error(t, tr.Write(ctx, solax.RegisterWrite{Address: solax.Input(0x20), Words: []uint16{1}}))
	assert.Error(t, tr.Write(ctx, solax.RegisterWrite{Address: solax.Holding(0x20)}))
	client.AssertNumberOfCalls(t, "WriteSingleRegister", 1)
}

func TestTransport_WriteError(t *testing.T) {
	client := &mockClient{}
	client.On("WriteSingleRegister", uint16(0x1F), uint16(1)).Return(nil, errors.New("illegal data value"))
	tr := New(client)

	err := tr.Write(context.Background(), solax.RegisterWrite{Address: solax.Holding(0x1F), Words: []uint16{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal data value")
}

func TestDial_UnknownMode(t *testing.T) {
	_, err := Dial(Options{Mode: "udp", Address: "localhost:502"})
	assert.Error(t, err)
}

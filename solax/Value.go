package solax

import (
	"fmt"
	"strconv"
)

// Registers is one poll's worth of raw words, keyed by address.
type Registers map[Address]uint16

// Words returns the words of a span, or false if any of them is missing.
func (r Registers) Words(reg Register) ([]uint16, bool) {
	addrs := reg.Addresses()
	words := make([]uint16, len(addrs))
	for i, a := range addrs {
		w, ok := r[a]
		if !ok {
			return nil, false
		}
		words[i] = w
	}
	return words, true
}

// Put stores words starting at addr.
func (r Registers) Put(addr Address, words ...uint16) {
	for i, w := range words {
		r[Address{Table: addr.Table, Offset: addr.Offset + uint16(i)}] = w
	}
}

// Status は1キーのデコード結果の種類です。
type Status int

const (
	StatusOK          Status = iota
	StatusUnavailable        // レジスタがこのバッチに含まれていない
	StatusUnknownCode        // 列挙に存在しないコード
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusUnknownCode:
		return "unknown_code"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Value is the decoded outcome for one key.
//
// Number holds the numeric value (the code for enumerations). Label is set for
// enumerations with a known code, Text for ascii and clock encodings.
type Value struct {
	Status  Status
	Number  float64
	Label   string
	Text    string
	Unit    string
	Integer bool // Number has no fractional part by definition
}

// Unavailable is the outcome for a key whose registers were not read.
var Unavailable = Value{Status: StatusUnavailable}

// OK reports whether the value can be presented.
func (v Value) OK() bool {
	return v.Status == StatusOK
}

// Numeric reports whether Number is meaningful as a measurement.
func (v Value) Numeric() bool {
	return v.Status == StatusOK && v.Label == "" && v.Text == ""
}

// Code returns the raw enumeration code.
func (v Value) Code() int {
	return int(v.Number)
}

// String は表示用の文字列を返します。単位は付けません。
func (v Value) String() string {
	switch v.Status {
	case StatusUnavailable:
		return "unavailable"
	case StatusUnknownCode:
		return fmt.Sprintf("unknown code %d", v.Code())
	}
	switch {
	case v.Label != "":
		return v.Label
	case v.Text != "":
		return v.Text
	case v.Integer:
		return strconv.FormatInt(int64(v.Number), 10)
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// StringWithUnit appends the unit when there is one.
func (v Value) StringWithUnit() string {
	s := v.String()
	if v.OK() && v.Unit != "" && v.Label == "" && v.Text == "" {
		return s + v.Unit
	}
	return s
}

// RegisterWrite is what the transport must write for one encode call.
type RegisterWrite struct {
	Address Address
	Words   []uint16
}

func (w RegisterWrite) String() string {
	return fmt.Sprintf("%s <- %04X", w.Address, w.Words)
}

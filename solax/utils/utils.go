package utils

import "golang.org/x/exp/constraints"

// JoinWords は 2 ワードを 32bit 値に結合します。
// highFirst が true のとき words[0] が上位ワードです。
func JoinWords(words []uint16, highFirst bool) uint32 {
	switch len(words) {
	case 1:
		return uint32(words[0])
	case 2:
		if highFirst {
			return uint32(words[0])<<16 | uint32(words[1])
		}
		return uint32(words[1])<<16 | uint32(words[0])
	}
	panic("words length must be 1 or 2")
}

// SplitWords は JoinWords の逆変換です。
func SplitWords(n uint32, count int, highFirst bool) []uint16 {
	switch count {
	case 1:
		return []uint16{uint16(n)}
	case 2:
		hi, lo := uint16(n>>16), uint16(n)
		if highFirst {
			return []uint16{hi, lo}
		}
		return []uint16{lo, hi}
	}
	panic("count must be 1 or 2")
}

// SignExtend interprets the low bits of n as a two's complement number.
func SignExtend(n uint32, bits int) int64 {
	shift := 64 - bits
	return int64(uint64(n)<<shift) >> shift
}

// FitsWidth reports whether v can be stored in a register span of the given
// bit width, signed or unsigned.
func FitsWidth[T constraints.Integer](v T, bits int, signed bool) bool {
	n := int64(v)
	if signed {
		limit := int64(1) << (bits - 1)
		return n >= -limit && n < limit
	}
	return n >= 0 && uint64(n) < uint64(1)<<bits
}

// WordsToBytes は Modbus のビッグエンディアン表現に変換します。
func WordsToBytes(words []uint16) []byte {
	b := make([]byte, 0, len(words)*2)
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	return b
}

func BytesToWords(b []byte) []uint16 {
	if len(b)%2 != 0 {
		panic("byte length must be even")
	}
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = uint16(b[i*2])<<8 | uint16(b[i*2+1])
	}
	return words
}

// WordsToASCII decodes text packed two characters per word, high byte first.
// Trailing NUL and space padding is removed.
func WordsToASCII(words []uint16) string {
	b := WordsToBytes(words)
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}

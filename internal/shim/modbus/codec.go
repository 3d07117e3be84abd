// internal/shim/modbus/codec.go
package modbus

import (
	"fmt"
	"math"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
)

// ---- helpers (pure geometry) ----

func packBits(bits []bool) []byte {
	n := (len(bits) + 7) / 8
	out := make([]byte, n)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<uint(i%8)) != 0
	}
	return out
}

// Modbus register memory order (BIG-ENDIAN)
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

// ---- value mapping ----

// bitsValue maps bits to Bool for a single item, Bools otherwise.
func bitsValue(bits []bool) model.Value {
	if len(bits) == 1 {
		return model.Bool(bits[0])
	}
	return model.Bools(bits)
}

// registersValue maps registers to Int for a single item, Ints otherwise.
// Registers are read as unsigned.
func registersValue(regs []uint16) model.Value {
	if len(regs) == 1 {
		return model.Int(int64(regs[0]))
	}
	out := make([]int64, len(regs))
	for i, r := range regs {
		out[i] = int64(r)
	}
	return model.Ints(out)
}

// toBits converts a write value for a coil range of count items.
func toBits(v model.Value, count uint16) ([]bool, error) {
	var bits []bool
	switch v.Type {
	case model.TypeBool:
		b, _ := v.AsBool()
		bits = []bool{b}
	case model.TypeBoolArray:
		bits, _ = v.AsBools()
	case model.TypeInt:
		i, _ := v.AsInt()
		if i != 0 && i != 1 {
			return nil, fmt.Errorf("%w: coil value %d is not 0 or 1", control.ErrConfiguration, i)
		}
		bits = []bool{i == 1}
	default:
		return nil, fmt.Errorf("%w: cannot write %s to coils", control.ErrConfiguration, v.Type)
	}
	if len(bits) != int(count) {
		return nil, fmt.Errorf("%w: %d values for %d coils", control.ErrConfiguration, len(bits), count)
	}
	return bits, nil
}

func register(i int64) (uint16, error) {
	if i < math.MinInt16 || i > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d does not fit a 16-bit register", control.ErrConfiguration, i)
	}
	return uint16(i), nil // negative values are written as two's complement
}

// toRegisters converts a write value for a holding register range.
func toRegisters(v model.Value, count uint16) ([]uint16, error) {
	var ints []int64
	switch v.Type {
	case model.TypeInt:
		i, _ := v.AsInt()
		ints = []int64{i}
	case model.TypeIntArray:
		ints, _ = v.AsInts()
	case model.TypeBool:
		b, _ := v.AsBool()
		ints = []int64{0}
		if b {
			ints[0] = 1
		}
	case model.TypeFloat:
		f, _ := v.AsFloat()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %g is not an integer register value", control.ErrConfiguration, f)
		}
		ints = []int64{int64(f)}
	default:
		return nil, fmt.Errorf("%w: cannot write %s to registers", control.ErrConfiguration, v.Type)
	}
	if len(ints) != int(count) {
		return nil, fmt.Errorf("%w: %d values for %d registers", control.ErrConfiguration, len(ints), count)
	}
	out := make([]uint16, len(ints))
	for i, x := range ints {
		r, err := register(x)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Encode converts a write value for a, regardless of whether the area is
// writable over Modbus itself.
func Encode(a Address, v model.Value) (bits []bool, regs []uint16, err error) {
	if a.Area.Bits() {
		bits, err = toBits(v, a.Count)
		return bits, nil, err
	}
	regs, err = toRegisters(v, a.Count)
	return nil, regs, err
}

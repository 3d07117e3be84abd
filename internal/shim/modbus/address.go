// internal/shim/modbus/address.go
package modbus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/superscore/internal/control"
)

// Area is a Modbus data table, named by its read function code.
type Area uint8

const (
	AreaCoil            Area = 1 // FC 1, write FC 15
	AreaDiscreteInput   Area = 2 // FC 2, read-only
	AreaHoldingRegister Area = 3 // FC 3, write FC 16
	AreaInputRegister   Area = 4 // FC 4, read-only
)

var areaNames = map[string]Area{
	"coil": AreaCoil,
	"di":   AreaDiscreteInput,
	"hr":   AreaHoldingRegister,
	"ir":   AreaInputRegister,
}

func (a Area) String() string {
	for n, v := range areaNames {
		if v == a {
			return n
		}
	}
	return fmt.Sprintf("area(%d)", uint8(a))
}

// Bits reports whether the area holds single bits.
func (a Area) Bits() bool { return a == AreaCoil || a == AreaDiscreteInput }

// Writable reports whether the area accepts writes.
func (a Area) Writable() bool { return a == AreaCoil || a == AreaHoldingRegister }

// maxQuantity is the protocol limit for one read request.
func (a Area) maxQuantity() uint16 {
	if a.Bits() {
		return 2000
	}
	return 125
}

// Address locates Count consecutive items of one area on one unit.
type Address struct {
	Unit   uint8
	Area   Area
	Offset uint16
	Count  uint16
}

// ParseAddress parses "[unit/]area/offset[:count]", e.g. "hr/100",
// "coil/8:4" or "17/ir/0". Without a unit prefix defaultUnit is used.
func ParseAddress(s string, defaultUnit uint8) (Address, error) {
	bad := func(why string) (Address, error) {
		return Address{}, fmt.Errorf("%w: modbus address %q: %s", control.ErrConfiguration, s, why)
	}

	parts := strings.Split(s, "/")
	a := Address{Unit: defaultUnit, Count: 1}
	switch len(parts) {
	case 2:
	case 3:
		u, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return bad("unit id must be 0..255")
		}
		a.Unit = uint8(u)
		parts = parts[1:]
	default:
		return bad("want [unit/]area/offset[:count]")
	}

	area, ok := areaNames[parts[0]]
	if !ok {
		return bad("area must be coil, di, hr or ir")
	}
	a.Area = area

	offset, count, hasCount := strings.Cut(parts[1], ":")
	off, err := strconv.ParseUint(offset, 10, 16)
	if err != nil {
		return bad("offset must be 0..65535")
	}
	a.Offset = uint16(off)
	if hasCount {
		n, err := strconv.ParseUint(count, 10, 16)
		if err != nil || n == 0 {
			return bad("count must be > 0")
		}
		a.Count = uint16(n)
	}
	if a.Count > area.maxQuantity() {
		return bad(fmt.Sprintf("count exceeds %d", area.maxQuantity()))
	}
	if int(a.Offset)+int(a.Count) > 1<<16 {
		return bad("range past end of table")
	}
	return a, nil
}

func (a Address) String() string {
	s := fmt.Sprintf("%d/%s/%d", a.Unit, a.Area, a.Offset)
	if a.Count != 1 {
		s += fmt.Sprintf(":%d", a.Count)
	}
	return s
}

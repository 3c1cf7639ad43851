package pgtype

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
)

// numeric sign markers, per src/backend/utils/adt/numeric.c.
const (
	numericPos    = 0x0000
	numericNeg    = 0x4000
	numericNaN    = 0xC000
	nbase         = 10000
	decDigitsBase = 4 // decimal digits per NBASE digit
)

// numericCodec implements the PostgreSQL NBASE-10000 binary numeric
// encoding for shopspring/decimal.Decimal values, the arbitrary-precision
// decimal type named in the value codec table.
type numericCodec struct{}

func (numericCodec) Encode(dst []byte, v any) ([]byte, error) {
	d, err := toDecimal(v)
	if err != nil {
		return nil, err
	}

	sign := numericPos
	coeff := d.Coefficient()
	if coeff.Sign() < 0 {
		sign = numericNeg
		coeff.Abs(coeff)
	}

	scale := int(-d.Exponent())
	if scale < 0 {
		scale = 0
	}

	ndigits, wt := nbaseDigits(coeff.String(), scale)

	buf := dst
	buf = appendInt16(buf, int16(len(ndigits)))
	buf = appendInt16(buf, wt)
	buf = appendInt16(buf, int16(sign))
	buf = appendInt16(buf, int16(scale))
	for _, dg := range ndigits {
		buf = appendInt16(buf, dg)
	}

	return buf, nil
}

func (numericCodec) Decode(src []byte) (any, error) {
	if len(src) < 8 {
		return nil, fmt.Errorf("pgtype: numeric: short buffer")
	}

	ndigits := int(binary.BigEndian.Uint16(src[0:2]))
	weight := int16(binary.BigEndian.Uint16(src[2:4]))
	sign := binary.BigEndian.Uint16(src[4:6])
	dscale := int16(binary.BigEndian.Uint16(src[6:8]))

	if sign == numericNaN {
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: NaN is not representable")
	}

	if ndigits == 0 {
		return decimal.New(0, -int32(dscale)), nil
	}

	pos := 8
	var raw string
	for i := 0; i < ndigits; i++ {
		if len(src) < pos+2 {
			return nil, fmt.Errorf("pgtype: numeric: truncated digit %d", i)
		}
		dg := binary.BigEndian.Uint16(src[pos : pos+2])
		pos += 2
		if i == 0 {
			raw += fmt.Sprintf("%d", dg)
		} else {
			raw += fmt.Sprintf("%04d", dg)
		}
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("pgtype: numeric: %w", err)
	}

	// The digit groups spell out an integer whose first group sits at
	// NBASE-weight `weight`: scale by 10000^(weight+1-ndigits) to place the
	// decimal point. dscale only records display scale and adds no value
	// information.
	value = value.Shift(int32((int(weight) + 1 - ndigits) * decDigitsBase))
	if sign == numericNeg {
		value = value.Neg()
	}

	return value, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		return *t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case string:
		return decimal.NewFromString(t)
	default:
		return decimal.Decimal{}, fmt.Errorf("pgtype: numeric: unsupported value type %T", v)
	}
}

func appendInt16(dst []byte, v int16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return append(dst, b[:]...)
}

// nbaseDigits groups a base-10 digit string (with `scale` digits already
// understood to sit after the decimal point) into NBASE=10000 digit groups
// and returns (digits, weight).
func nbaseDigits(digitsStr string, scale int) ([]int16, int16) {
	// Normalize to a string representing the integer value digitsStr *
	// 10^scale, i.e. scale digits belong after the point; pad so the
	// fractional part length is a multiple of 4 and the integer part is
	// grouped in 4s from the point outward.
	if scale < 0 {
		scale = 0
	}

	intLen := len(digitsStr) - scale
	if intLen < 0 {
		pad := -intLen
		digitsStr = padLeft(digitsStr, len(digitsStr)+pad)
		intLen = 0
	}

	fracPad := (decDigitsBase - scale%decDigitsBase) % decDigitsBase
	intPad := (decDigitsBase - intLen%decDigitsBase) % decDigitsBase
	if intLen == 0 {
		intPad = 0
	}

	padded := padLeft(digitsStr[:intLen], intLen+intPad) + digitsStr[intLen:] + zeros(fracPad)

	groups := len(padded) / decDigitsBase
	weight := int16((intLen+intPad)/decDigitsBase - 1)

	out := make([]int16, 0, groups)
	for i := 0; i < groups; i++ {
		chunk := padded[i*decDigitsBase : (i+1)*decDigitsBase]
		var n int
		fmt.Sscanf(chunk, "%d", &n)
		out = append(out, int16(n))
	}

	// trim trailing all-zero groups, keeping at least one
	for len(out) > 1 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	// trim leading all-zero groups, adjusting weight
	for len(out) > 1 && out[0] == 0 {
		out = out[1:]
		weight--
	}

	return out, weight
}

func padLeft(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

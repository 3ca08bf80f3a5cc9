package lzstring

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"

const (
	codeLiteral8  = 0
	codeLiteral16 = 1
	codeEnd       = 2
)

// ErrDecode marks every failure returned by Decode.
var ErrDecode = errors.New("lzstring decode failed")

// DecodeError describes where and why a compact stream could not be decoded.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("lzstring: %s at offset %d", e.Reason, e.Offset)
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

var reverseAlphabet = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		table[alphabet[i]] = int8(i)
	}
	// Form encoding turns '+' into a space somewhere between publisher and reader.
	table[' '] = table['+']
	return table
}()

func charValue(c byte) (int, bool) {
	v := reverseAlphabet[c]
	return int(v), v >= 0
}

// bitReader yields bits from the compact stream, most significant bit of
// each six bit group first.
type bitReader struct {
	input string
	next  int
	value int
	mask  int
}

func (r *bitReader) refill() error {
	if r.next >= len(r.input) {
		return &DecodeError{Offset: r.next, Reason: "truncated stream"}
	}
	v, _ := charValue(r.input[r.next])
	r.value = v
	r.mask = 32
	r.next++
	return nil
}

// read assembles n bits into an integer, least significant bit first.
func (r *bitReader) read(n int) (int, error) {
	bits := 0
	for power := 1; power < 1<<n; power <<= 1 {
		if r.mask == 0 {
			if err := r.refill(); err != nil {
				return 0, err
			}
		}
		if r.value&r.mask != 0 {
			bits |= power
		}
		r.mask >>= 1
	}
	return bits, nil
}

// Decode reconstructs the text encoded in compact. An empty input decodes to
// an empty string. Characters outside the alphabet, a stream that ends before
// its end marker and references past the dictionary all return a *DecodeError.
func Decode(compact string) (string, error) {
	if compact == "" {
		return "", nil
	}
	// The whole input is checked up front, including anything after the end
	// marker.
	for i := 0; i < len(compact); i++ {
		if _, ok := charValue(compact[i]); !ok {
			return "", &DecodeError{Offset: i, Reason: fmt.Sprintf("invalid character %q", compact[i])}
		}
	}
	r := &bitReader{input: compact}

	first, err := r.read(2)
	if err != nil {
		return "", err
	}
	var w []uint16
	switch first {
	case codeLiteral8, codeLiteral16:
		unit, err := r.read(literalWidth(first))
		if err != nil {
			return "", err
		}
		w = []uint16{uint16(unit)}
	case codeEnd:
		return "", nil
	default:
		// A stream must open with a literal; there is nothing to refer back to.
		return "", &DecodeError{Offset: r.next, Reason: "invalid back-reference"}
	}

	// Slots 0-2 stay reserved for the control codes.
	dict := make([][]uint16, 3, 256)
	dict = append(dict, w)
	out := make([]uint16, 0, len(compact)*2)
	out = append(out, w...)

	numBits := 3
	enlargeIn := 4
	grow := func() {
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}

	for {
		code, err := r.read(numBits)
		if err != nil {
			return "", err
		}

		switch code {
		case codeLiteral8, codeLiteral16:
			unit, err := r.read(literalWidth(code))
			if err != nil {
				return "", err
			}
			dict = append(dict, []uint16{uint16(unit)})
			code = len(dict) - 1
			enlargeIn--
		case codeEnd:
			return string(utf16.Decode(out)), nil
		}
		grow()

		var entry []uint16
		switch {
		case code < len(dict):
			entry = dict[code]
		case code == len(dict):
			entry = make([]uint16, len(w)+1)
			copy(entry, w)
			entry[len(w)] = w[0]
		default:
			return "", &DecodeError{
				Offset: r.next,
				Reason: fmt.Sprintf("invalid back-reference %d (dictionary size %d)", code, len(dict)),
			}
		}
		out = append(out, entry...)

		joined := make([]uint16, len(w)+1)
		copy(joined, w)
		joined[len(w)] = entry[0]
		dict = append(dict, joined)
		enlargeIn--
		w = entry
		grow()
	}
}

func literalWidth(code int) int {
	if code == codeLiteral16 {
		return 16
	}
	return 8
}

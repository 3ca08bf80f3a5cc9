package lzstring

import "unicode/utf16"

// Encode compresses text into the URI-safe compact form understood by Decode.
// The output matches lz-string's compressToEncodedURIComponent.
func Encode(text string) string {
	e := &encoder{
		dict:      make(map[string]int),
		pending:   make(map[string]struct{}),
		dictSize:  3,
		numBits:   2,
		enlargeIn: 2,
	}

	var w string
	for _, unit := range utf16.Encode([]rune(text)) {
		c := unitKey(unit)
		if _, ok := e.dict[c]; !ok {
			e.dict[c] = e.dictSize
			e.dictSize++
			e.pending[c] = struct{}{}
		}
		wc := w + c
		if _, ok := e.dict[wc]; ok {
			w = wc
			continue
		}
		e.emit(w)
		e.dict[wc] = e.dictSize
		e.dictSize++
		w = c
	}
	if w != "" {
		e.emit(w)
	}

	e.bits.write(codeEnd, e.numBits)
	e.bits.flush()
	return string(e.bits.out)
}

// unitKey packs a UTF-16 unit into a two byte map key so phrases can be
// concatenated as plain strings.
func unitKey(u uint16) string {
	return string([]byte{byte(u >> 8), byte(u)})
}

type encoder struct {
	dict      map[string]int
	pending   map[string]struct{}
	dictSize  int
	numBits   int
	enlargeIn int
	bits      bitWriter
}

func (e *encoder) emit(w string) {
	if _, ok := e.pending[w]; ok {
		unit := int(w[0])<<8 | int(w[1])
		if unit < 256 {
			e.bits.write(codeLiteral8, e.numBits)
			e.bits.write(unit, 8)
		} else {
			e.bits.write(codeLiteral16, e.numBits)
			e.bits.write(unit, 16)
		}
		e.shrink()
		delete(e.pending, w)
	} else {
		e.bits.write(e.dict[w], e.numBits)
	}
	e.shrink()
}

func (e *encoder) shrink() {
	e.enlargeIn--
	if e.enlargeIn == 0 {
		e.enlargeIn = 1 << e.numBits
		e.numBits++
	}
}

type bitWriter struct {
	out      []byte
	value    int
	position int
}

// write appends the low n bits of value, least significant bit first.
func (b *bitWriter) write(value, n int) {
	for i := 0; i < n; i++ {
		b.value = b.value<<1 | value&1
		if b.position == 5 {
			b.out = append(b.out, alphabet[b.value])
			b.value = 0
			b.position = 0
		} else {
			b.position++
		}
		value >>= 1
	}
}

func (b *bitWriter) flush() {
	for {
		b.value <<= 1
		if b.position == 5 {
			b.out = append(b.out, alphabet[b.value])
			return
		}
		b.position++
	}
}

package sleigh

import "lift/internal/disasm"

// LoadImage supplies code bytes to the engine.
type LoadImage interface {
	// LoadFill fills buf with the bytes starting at addr. Bytes outside the
	// image are zero.
	LoadFill(buf []byte, addr disasm.Address)
	// BufSize is the number of bytes the image covers.
	BufSize() int
	// AdjustVMA shifts the image base.
	AdjustVMA(delta int64)
}

// PlainLoadImage is a single contiguous buffer mapped at a start offset.
type PlainLoadImage struct {
	buf   []byte
	start uint64
}

// NewPlainLoadImage copies buf and maps it at start.
func NewPlainLoadImage(buf []byte, start uint64) *PlainLoadImage {
	b := make([]byte, len(buf))
	copy(b, buf)
	return &PlainLoadImage{buf: b, start: start}
}

func (l *PlainLoadImage) LoadFill(buf []byte, addr disasm.Address) {
	for i := range buf {
		buf[i] = 0
		cur := addr.Offset + uint64(i)
		if cur < l.start {
			continue
		}
		if off := cur - l.start; off < uint64(len(l.buf)) {
			buf[i] = l.buf[off]
		}
	}
}

func (l *PlainLoadImage) BufSize() int {
	return len(l.buf)
}

func (l *PlainLoadImage) AdjustVMA(delta int64) {
	l.start = uint64(int64(l.start) + delta)
}

// Start is the offset of the first byte of the image.
func (l *PlainLoadImage) Start() uint64 {
	return l.start
}

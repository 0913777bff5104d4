package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

const (
	alignLeft   = 0
	alignCenter = 1
)

// drawerKick pulses pin 2 to open a cash drawer wired to the printer.
var drawerKick = []byte{esc, 'p', 0x00, 0x19, 0xfa}

// document accumulates an ESC/POS byte stream for a thermal printer.
type document struct {
	buf   bytes.Buffer
	width int
}

func newDocument(width int) *document {
	if width <= 0 {
		width = 32
	}
	d := &document{width: width}
	d.buf.Write([]byte{esc, '@'})
	return d
}

func (d *document) align(a byte) *document {
	d.buf.Write([]byte{esc, 'a', a})
	return d
}

func (d *document) bold(on bool) *document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

func (d *document) text(s string) *document {
	d.buf.WriteString(s)
	d.buf.WriteByte(lf)
	return d
}

func (d *document) separator() *document {
	return d.text(strings.Repeat("-", d.width))
}

func (d *document) keyValue(key, value string) *document {
	return d.text(padBetween(key, value, d.width))
}

func (d *document) feed(n int) *document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(lf)
	}
	return d
}

func (d *document) cut() *document {
	d.buf.Write([]byte{gs, 'V', 0x01})
	return d
}

func (d *document) raw(b []byte) *document {
	d.buf.Write(b)
	return d
}

func (d *document) bytes() []byte {
	return d.buf.Bytes()
}

// padBetween left-aligns key and right-aligns value on one line of width
// runes, keeping at least one space between them.
func padBetween(key, value string, width int) string {
	spaces := width - utf8.RuneCountInString(key) - utf8.RuneCountInString(value)
	if spaces < 1 {
		spaces = 1
	}
	return key + strings.Repeat(" ", spaces) + value
}

func itemLine(qty int, name, total string, width int) string {
	return padBetween(fmt.Sprintf("%dx %s", qty, name), total, width)
}

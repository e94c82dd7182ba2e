package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"lavendeux/internal/value"
)

// Image is a compiled program: header, function table (each function
// carrying its own constant pool), and an entry-point function id
// (spec.md §4.1). The logical content is
// fixed by spec.md; this on-disk framing (length-prefixed big-endian
// sections via encoding/binary) is the implementation choice spec.md
// leaves open, grounded on db47h-ngaro's vm.Image.Load/Save
// (length-aware binary.Read/Write of a flat section list).
type Image struct {
	Magic     uint32
	Version   uint16
	DebugInfo bool
	Functions []*FuncEntry
	Entry     uint64
}

const ImageMagic uint32 = 0x4C415642 // "LAVB"
const ImageVersion uint16 = 1

func NewImage(debug bool) *Image {
	return &Image{Magic: ImageMagic, Version: ImageVersion, DebugInfo: debug}
}

// valueTag identifies a constant-pool entry's concrete type on the wire.
type valueTag byte

const (
	tagNil valueTag = iota
	tagInt
	tagFloat
	tagFixed
	tagBool
	tagStr
)

// Encode writes the image in its on-disk form.
func (img *Image) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, img.Magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, img.Version); err != nil {
		return err
	}
	debugByte := byte(0)
	if img.DebugInfo {
		debugByte = 1
	}
	if err := binary.Write(w, binary.BigEndian, debugByte); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(img.Functions))); err != nil {
		return err
	}
	for _, fn := range img.Functions {
		if err := encodeFunc(w, fn, img.DebugInfo); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.BigEndian, img.Entry)
}

func encodeFunc(w io.Writer, fn *FuncEntry, debug bool) error {
	if err := binary.Write(w, binary.BigEndian, fn.ID); err != nil {
		return err
	}
	for _, s := range []string{fn.Name, fn.Category, fn.Signature, fn.Return} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	hiddenByte := byte(0)
	if fn.Hidden {
		hiddenByte = 1
	}
	if err := binary.Write(w, binary.BigEndian, hiddenByte); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(fn.Params))); err != nil {
		return err
	}
	for _, p := range fn.Params {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		if err := writeString(w, p.Type); err != nil {
			return err
		}
		hasDefault := byte(0)
		if p.HasDefault {
			hasDefault = 1
		}
		byRef := byte(0)
		if p.ByRef {
			byRef = 1
		}
		if err := binary.Write(w, binary.BigEndian, [2]byte{hasDefault, byRef}); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, int32(p.Default)); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(fn.Locals))); err != nil {
		return err
	}
	for _, l := range fn.Locals {
		if err := writeString(w, l); err != nil {
			return err
		}
	}
	for _, s := range []string{fn.Short, fn.Desc, fn.Example} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return encodeChunk(w, fn.Code, debug)
}

func encodeChunk(w io.Writer, c *Chunk, debug bool) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Constants))); err != nil {
		return err
	}
	for _, v := range c.Constants {
		if err := encodeValue(w, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Code))); err != nil {
		return err
	}
	if _, err := w.Write(c.Code); err != nil {
		return err
	}
	if debug {
		for i := 0; i < len(c.Code); i++ {
			d := c.GetDebugInfo(i)
			if err := binary.Write(w, binary.BigEndian, int32(d.Line)); err != nil {
				return err
			}
			if err := binary.Write(w, binary.BigEndian, int32(d.Column)); err != nil {
				return err
			}
			if err := writeString(w, d.File); err != nil {
				return err
			}
			if err := writeString(w, d.Function); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeValue(w io.Writer, v value.Value) error {
	switch x := v.(type) {
	case value.Int:
		signed := byte(0)
		if x.Signed {
			signed = 1
		}
		if err := binary.Write(w, binary.BigEndian, tagInt); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, [2]byte{signed, byte(x.Width)}); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, x.AsInt64())
	case value.Float:
		if err := binary.Write(w, binary.BigEndian, tagFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, float64(x))
	case value.Fixed:
		if err := binary.Write(w, binary.BigEndian, tagFixed); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, x.Scale); err != nil {
			return err
		}
		return writeString(w, x.Dec.String())
	case value.Bool:
		if err := binary.Write(w, binary.BigEndian, tagBool); err != nil {
			return err
		}
		b := byte(0)
		if x {
			b = 1
		}
		return binary.Write(w, binary.BigEndian, b)
	case value.Str:
		if err := binary.Write(w, binary.BigEndian, tagStr); err != nil {
			return err
		}
		return writeString(w, string(x))
	default:
		return binary.Write(w, binary.BigEndian, tagNil)
	}
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// Decode reads an image previously written by Encode. Malformed input is
// returned as a plain I/O/format error, not a LoadError; internal/loader
// only sees images that decoded successfully.
func Decode(r io.Reader) (*Image, error) {
	img := &Image{}
	if err := binary.Read(r, binary.BigEndian, &img.Magic); err != nil {
		return nil, err
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("bad image magic %#x", img.Magic)
	}
	if err := binary.Read(r, binary.BigEndian, &img.Version); err != nil {
		return nil, err
	}
	var debugByte byte
	if err := binary.Read(r, binary.BigEndian, &debugByte); err != nil {
		return nil, err
	}
	img.DebugInfo = debugByte != 0
	var fnCount uint32
	if err := binary.Read(r, binary.BigEndian, &fnCount); err != nil {
		return nil, err
	}
	img.Functions = make([]*FuncEntry, 0, fnCount)
	for i := uint32(0); i < fnCount; i++ {
		fn, err := decodeFunc(r, img.DebugInfo)
		if err != nil {
			return nil, err
		}
		img.Functions = append(img.Functions, fn)
	}
	if err := binary.Read(r, binary.BigEndian, &img.Entry); err != nil {
		return nil, err
	}
	return img, nil
}

func decodeFunc(r io.Reader, debug bool) (*FuncEntry, error) {
	fn := &FuncEntry{}
	if err := binary.Read(r, binary.BigEndian, &fn.ID); err != nil {
		return nil, err
	}
	var err error
	if fn.Name, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Category, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Signature, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Return, err = readString(r); err != nil {
		return nil, err
	}
	var hiddenByte byte
	if err := binary.Read(r, binary.BigEndian, &hiddenByte); err != nil {
		return nil, err
	}
	fn.Hidden = hiddenByte != 0
	var paramCount uint16
	if err := binary.Read(r, binary.BigEndian, &paramCount); err != nil {
		return nil, err
	}
	fn.Params = make([]ParamSpec, paramCount)
	for i := range fn.Params {
		p := &fn.Params[i]
		if p.Name, err = readString(r); err != nil {
			return nil, err
		}
		if p.Type, err = readString(r); err != nil {
			return nil, err
		}
		var flags [2]byte
		if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
			return nil, err
		}
		p.HasDefault = flags[0] != 0
		p.ByRef = flags[1] != 0
		var def int32
		if err := binary.Read(r, binary.BigEndian, &def); err != nil {
			return nil, err
		}
		p.Default = int(def)
	}
	var localCount uint16
	if err := binary.Read(r, binary.BigEndian, &localCount); err != nil {
		return nil, err
	}
	fn.Locals = make([]string, localCount)
	for i := range fn.Locals {
		if fn.Locals[i], err = readString(r); err != nil {
			return nil, err
		}
	}
	if fn.Short, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Desc, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Example, err = readString(r); err != nil {
		return nil, err
	}
	fn.Hidden = fn.Hidden || (len(fn.Name) >= 2 && fn.Name[:2] == "__")
	if fn.Code, err = decodeChunk(r, debug); err != nil {
		return nil, err
	}
	return fn, nil
}

func decodeChunk(r io.Reader, debug bool) (*Chunk, error) {
	c := NewChunk()
	var constCount uint32
	if err := binary.Read(r, binary.BigEndian, &constCount); err != nil {
		return nil, err
	}
	for i := uint32(0); i < constCount; i++ {
		v, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		c.Constants = append(c.Constants, v)
	}
	var codeLen uint32
	if err := binary.Read(r, binary.BigEndian, &codeLen); err != nil {
		return nil, err
	}
	c.Code = make([]byte, codeLen)
	if _, err := io.ReadFull(r, c.Code); err != nil {
		return nil, err
	}
	c.Debug = make([]DebugInfo, codeLen)
	if debug {
		for i := uint32(0); i < codeLen; i++ {
			var line, col int32
			if err := binary.Read(r, binary.BigEndian, &line); err != nil {
				return nil, err
			}
			if err := binary.Read(r, binary.BigEndian, &col); err != nil {
				return nil, err
			}
			file, err := readString(r)
			if err != nil {
				return nil, err
			}
			fnName, err := readString(r)
			if err != nil {
				return nil, err
			}
			c.Debug[i] = DebugInfo{Line: int(line), Column: int(col), File: file, Function: fnName}
		}
	}
	return c, nil
}

func decodeValue(r io.Reader) (value.Value, error) {
	var tag valueTag
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return value.Nil, nil
	case tagInt:
		var flags [2]byte
		if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
			return nil, err
		}
		var raw int64
		if err := binary.Read(r, binary.BigEndian, &raw); err != nil {
			return nil, err
		}
		w := value.Width(flags[1])
		if flags[0] != 0 {
			return value.NewInt(raw, w), nil
		}
		return value.NewUint(uint64(raw), w), nil
	case tagFloat:
		var f float64
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return nil, err
		}
		return value.Float(f), nil
	case tagFixed:
		var scale int32
		if err := binary.Read(r, binary.BigEndian, &scale); err != nil {
			return nil, err
		}
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return value.NewFixed(d, scale), nil
	case tagBool:
		var b byte
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return nil, err
		}
		return value.Bool(b != 0), nil
	case tagStr:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return value.Str(s), nil
	default:
		return nil, fmt.Errorf("unknown constant tag %d", tag)
	}
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Bytes is a convenience Encode into an in-memory buffer (used by
// cmd/lavrun's testscript image writers).
func (img *Image) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package bytecode

import (
	"encoding/binary"

	"lavendeux/internal/value"
)

// DebugInfo stores the source location a single instruction compiled
// from, present only when the image was assembled with -D (spec.md §6).
type DebugInfo struct {
	Line     int
	Column   int
	File     string
	Function string
}

// Chunk is one function's compiled code: a flat byte stream of opcodes
// and operands, a constant pool of literal values it indexes into, and a
// parallel per-instruction debug table. Adapted from the teacher's
// bytecode.Chunk (Code []byte, Constants []interface{}, Debug
// []DebugInfo), generalized from Sentra's interface{} constants to
// value.Value.
type Chunk struct {
	Code      []byte
	Constants []value.Value
	Debug     []DebugInfo
}

func NewChunk() *Chunk {
	return &Chunk{Code: []byte{}, Constants: []value.Value{}, Debug: []DebugInfo{}}
}

func (c *Chunk) WriteOp(op Op) {
	c.Code = append(c.Code, byte(op))
	c.Debug = append(c.Debug, DebugInfo{})
}

func (c *Chunk) WriteOpWithDebug(op Op, d DebugInfo) {
	c.Code = append(c.Code, byte(op))
	c.Debug = append(c.Debug, d)
}

func (c *Chunk) WriteByte(b byte) {
	c.Code = append(c.Code, b)
	c.Debug = append(c.Debug, DebugInfo{})
}

// WriteUint16 writes a two-byte big-endian operand, the encoding used for
// constant-pool indices and jump offsets.
func (c *Chunk) WriteUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	c.Code = append(c.Code, buf[0], buf[1])
	c.Debug = append(c.Debug, DebugInfo{}, DebugInfo{})
}

// WriteUint64 writes an eight-byte big-endian operand: the encoding used
// for a CALL instruction's 64-bit function id.
func (c *Chunk) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	c.Code = append(c.Code, buf[:]...)
	for i := 0; i < 8; i++ {
		c.Debug = append(c.Debug, DebugInfo{})
	}
}

func (c *Chunk) ReadUint16(ip int) uint16 {
	return binary.BigEndian.Uint16(c.Code[ip : ip+2])
}

func (c *Chunk) ReadUint64(ip int) uint64 {
	return binary.BigEndian.Uint64(c.Code[ip : ip+8])
}

func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

func (c *Chunk) GetDebugInfo(ip int) DebugInfo {
	if ip >= 0 && ip < len(c.Debug) {
		return c.Debug[ip]
	}
	return DebugInfo{}
}

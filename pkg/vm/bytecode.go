package vm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
)

// Bytecode files carry a finished program: a fixed binary header with a
// magic and a format version, followed by a gob-encoded body. The version
// bumps whenever the wire shape changes; decoders reject anything newer.
const (
	bytecodeMagic   = "PLBC"
	bytecodeVersion = uint16(1)
)

var (
	ErrBadMagic   = errors.New("not a bytecode file")
	ErrBadVersion = errors.New("unsupported bytecode version")
)

type wireValue struct {
	Type uint8
	N    int64
	S    string
}

type wireInstr struct {
	Op         uint8
	P1, P2, P3 int32
	P4         wireValue
	P5         uint16
}

type wireProgram struct {
	Code       []wireInstr
	NumRegs    int32
	NumCursors int32
	NumCols    int32
}

func toWireValue(v Value) wireValue {
	return wireValue{Type: uint8(v.typ), N: v.n, S: v.s}
}

func fromWireValue(w wireValue) (Value, error) {
	if w.Type > uint8(TypeBlob) {
		return Null(), fmt.Errorf("bad value type %d", w.Type)
	}
	return Value{typ: Type(w.Type), n: w.N, s: w.S}, nil
}

// Encode writes the program in bytecode form.
func (p *Program) Encode(w io.Writer) error {
	if _, err := w.Write([]byte(bytecodeMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, bytecodeVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	wp := wireProgram{
		Code:       make([]wireInstr, len(p.code)),
		NumRegs:    int32(p.numRegs),
		NumCursors: int32(p.numCursors),
		NumCols:    int32(p.numCols),
	}
	for i, in := range p.code {
		wp.Code[i] = wireInstr{
			Op: uint8(in.Op),
			P1: int32(in.P1), P2: int32(in.P2), P3: int32(in.P3),
			P4: toWireValue(in.P4),
			P5: uint16(in.P5),
		}
	}
	if err := gob.NewEncoder(w).Encode(wp); err != nil {
		return fmt.Errorf("encode program: %w", err)
	}
	return nil
}

// DecodeProgram reads a bytecode stream and returns a runnable Program. The
// decoded code is validated with the same checks a Builder applies, so a
// corrupt or hand-forged file cannot produce out-of-bounds accesses.
func DecodeProgram(r io.Reader) (*Program, error) {
	magic := make([]byte, len(bytecodeMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if !bytes.Equal(magic, []byte(bytecodeMagic)) {
		return nil, ErrBadMagic
	}
	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != bytecodeVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	var wp wireProgram
	if err := gob.NewDecoder(r).Decode(&wp); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if wp.NumRegs < 1 || wp.NumCursors < 0 || wp.NumCols < 0 {
		return nil, fmt.Errorf("%w: bad program header", ErrBadOperand)
	}

	code := make([]Instr, len(wp.Code))
	for i, wi := range wp.Code {
		p4, err := fromWireValue(wi.P4)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		code[i] = Instr{
			Op: Opcode(wi.Op),
			P1: int(wi.P1), P2: int(wi.P2), P3: int(wi.P3),
			P4: p4,
			P5: Flags(wi.P5),
		}
	}
	for addr, in := range code {
		if err := validateInstr(addr, in, len(code), int(wp.NumRegs), int(wp.NumCursors), int(wp.NumCols)); err != nil {
			return nil, err
		}
	}

	return &Program{
		code:       code,
		numRegs:    int(wp.NumRegs),
		numCursors: int(wp.NumCursors),
		numCols:    int(wp.NumCols),
		regs:       make([]Value, wp.NumRegs),
		cursors:    make([]cursorSlot, wp.NumCursors),
		state:      StateReady,
	}, nil
}

// SaveFile writes the program's bytecode to a file.
func (p *Program) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := p.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a bytecode file into a runnable Program.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeProgram(f)
}

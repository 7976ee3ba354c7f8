package models

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
)

// snapshot format:
//
// file header
// [4]byte("WSNP"), uint32(format version), uint32(crc32 of compressed data), uint64(length)
// remainder is snappy-compressed
//
// -- uncompressed data start --
// uint64(RAM size), uint32(TTBR0), uint8(irq masked), uint8(idle)
// uint32(number of registers), 1..num: uint32(register value)
// <raw physical memory>

const snapshotVersion = 1

var ErrBadSnapshot = errors.New("bad snapshot")

type snapHeader struct {
	Magic   [4]byte
	Version uint32
	Crc     uint32
	Length  uint64
}

type snapState struct {
	MemSize   uint64
	Root      uint32
	IRQMasked uint8
	Idle      uint8
	RegCount  int `struc:"uint32,sizeof=Regs"`
	Regs      []uint32
}

// Machine is the hardware state captured by a snapshot.
type Machine interface {
	RAM() *cpu.PhysMem
	Core() *cpu.Core
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func Save(m Machine) ([]byte, error) {
	ram, core := m.RAM(), m.Core()
	var body bytes.Buffer
	s := StrucStream{&body, binary.BigEndian}
	state := &snapState{
		MemSize:   ram.Size(),
		Root:      core.Root(),
		IRQMasked: boolByte(core.IRQMasked()),
		Idle:      boolByte(core.Idle()),
		Regs:      make([]uint32, cpu.NUM_REGS),
	}
	for enum := range state.Regs {
		val, _ := core.RegRead(enum)
		state.Regs[enum] = uint32(val)
	}
	if err := s.Pack(state); err != nil {
		return nil, err
	}
	mem, err := ram.MemRead(0, ram.Size())
	if err != nil {
		return nil, err
	}
	body.Write(mem)

	data := snappy.Encode(nil, body.Bytes())
	var final bytes.Buffer
	s = StrucStream{&final, binary.BigEndian}
	hdr := &snapHeader{Version: snapshotVersion, Crc: crc32.ChecksumIEEE(data), Length: uint64(len(data))}
	copy(hdr.Magic[:], "WSNP")
	if err := s.Pack(hdr); err != nil {
		return nil, err
	}
	final.Write(data)
	return final.Bytes(), nil
}

// Load restores a snapshot into a machine with the same amount of RAM.
func Load(m Machine, snap []byte) error {
	r := bytes.NewBuffer(snap)
	s := StrucStream{r, binary.BigEndian}
	var hdr snapHeader
	if err := s.Unpack(&hdr); err != nil {
		return errors.Wrap(ErrBadSnapshot, err.Error())
	}
	if string(hdr.Magic[:]) != "WSNP" || hdr.Version != snapshotVersion {
		return errors.Wrapf(ErrBadSnapshot, "magic %q version %d", hdr.Magic[:], hdr.Version)
	}
	data := r.Bytes()
	if uint64(len(data)) != hdr.Length || crc32.ChecksumIEEE(data) != hdr.Crc {
		return errors.Wrap(ErrBadSnapshot, "checksum mismatch")
	}
	body, err := snappy.Decode(nil, data)
	if err != nil {
		return errors.Wrap(ErrBadSnapshot, err.Error())
	}
	br := bytes.NewBuffer(body)
	s = StrucStream{br, binary.BigEndian}
	var state snapState
	if err := s.Unpack(&state); err != nil {
		return errors.Wrap(ErrBadSnapshot, err.Error())
	}
	ram, core := m.RAM(), m.Core()
	if state.MemSize != ram.Size() || uint64(br.Len()) != state.MemSize {
		return errors.Wrapf(ErrBadSnapshot, "snapshot holds %#x bytes of RAM, machine has %#x", state.MemSize, ram.Size())
	}
	if err := ram.Write(0, br.Bytes()); err != nil {
		return err
	}
	for enum, val := range state.Regs {
		if enum < cpu.NUM_REGS {
			core.RegWrite(enum, uint64(val))
		}
	}
	core.SetRoot(state.Root)
	if state.IRQMasked != 0 {
		core.MaskIRQ()
	} else {
		core.UnmaskIRQ()
	}
	core.SetIdle(state.Idle != 0)
	return nil
}

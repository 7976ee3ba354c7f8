package models

// UserMem is memory reached through an address space's translation tables.
type UserMem interface {
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error
}

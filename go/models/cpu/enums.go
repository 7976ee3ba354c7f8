package cpu

// these errors are used for MemError
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14

	MEM_PROT     = MEM_WRITE_PROT | MEM_READ_PROT | MEM_FETCH_PROT
	MEM_UNMAPPED = MEM_READ_UNMAPPED | MEM_WRITE_UNMAPPED | MEM_FETCH_UNMAPPED
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// machine geometry
const (
	PAGE_SIZE    = 0x1000
	SECTION_SIZE = 0x100000
	// frames covered by one section mapping
	SECTION_FRAMES = SECTION_SIZE / PAGE_SIZE

	// lower bound of the kernel-shared half of every address space
	KERNEL_SPLIT = 0x80000000
)

// processor modes, as found in the low bits of CPSR
const (
	MODE_USR = 0x10
	MODE_IRQ = 0x12
	MODE_SVC = 0x13
)

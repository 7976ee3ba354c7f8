package cpu

// Core is the state of the single processor as seen from trap context: the live
// register file, the translation root and the interrupt mask.
type Core struct {
	*Regs

	// physical address of the active low-half translation table
	ttbr0 uint32
	// interrupts are masked while a trap is being dispatched
	irqMasked bool
	// set when no process could be resumed and the core waits for the next IRQ
	idle bool
}

func NewCore() *Core {
	return &Core{Regs: NewRegs()}
}

func (c *Core) SetRoot(root uint32) { c.ttbr0 = root }
func (c *Core) Root() uint32        { return c.ttbr0 }

func (c *Core) MaskIRQ()          { c.irqMasked = true }
func (c *Core) UnmaskIRQ()        { c.irqMasked = false }
func (c *Core) IRQMasked() bool   { return c.irqMasked }
func (c *Core) SetIdle(idle bool) { c.idle = idle }
func (c *Core) Idle() bool        { return c.idle }

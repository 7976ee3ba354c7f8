package proc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/math-fehr/WindOS-sub000/go/mem"
	"github.com/math-fehr/WindOS-sub000/go/mmu"
	"github.com/math-fehr/WindOS-sub000/go/models"
	"github.com/math-fehr/WindOS-sub000/go/models/cpu"
	"github.com/math-fehr/WindOS-sub000/go/models/mock"
	"github.com/math-fehr/WindOS-sub000/go/vfs"
)

var program = mock.Program(0x1000, []byte{0x01, 0x70, 0xa0, 0xe3, 0x00, 0x00, 0x00, 0xef})

const testRAM = 32 * cpu.SECTION_SIZE

func newTable(t *testing.T, maxProcs int) *Manager {
	t.Helper()
	ram := cpu.NewPhysMem(testRAM)
	frames := mem.New(ram.Frames(), nil)
	frames.Reserve(mem.Run{Base: 0, Count: 256})
	mm, err := mmu.NewManager(ram, frames, nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(mm, maxProcs, 8, nil)
}

func check(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Check(); err != nil {
		t.Fatal(err)
	}
	if err := m.MMU().Frames().Check(); err != nil {
		t.Fatal(err)
	}
}

func load(t *testing.T, m *Manager) (Handle, *Process) {
	t.Helper()
	h, err := m.Load(program, []string{"/bin/init"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.Get(h)
	return h, p
}

func fork(t *testing.T, m *Manager, h Handle) (Handle, *Process) {
	t.Helper()
	c, err := m.Fork(h)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.Get(c)
	return c, p
}

func word(t *testing.T, p *Process, addr uint64) uint32 {
	t.Helper()
	buf := make([]byte, 4)
	if err := p.Space.Read(addr, buf); err != nil {
		t.Fatal(err)
	}
	return binary.LittleEndian.Uint32(buf)
}

func TestLoad(t *testing.T) {
	m := newTable(t, 4)
	h, err := m.Load(program, []string{"/bin/sh", "-c", "ls"}, []string{"HOME=/"})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := m.Get(h)
	if p.Pid != 0 || p.Name != "sh" || p.Status != Active || p.Cwd != "/" {
		t.Fatalf("loaded %+v", p)
	}
	if p.Frame.Reg(cpu.PC) != 0x1000 || p.Frame.Reg(cpu.LR) != 0x1000 {
		t.Fatalf("frame %s", &p.Frame)
	}
	if p.Brk != BrkBase || p.BrkPages != 0 {
		t.Fatalf("brk %#x pages %d", p.Brk, p.BrkPages)
	}
	code := make([]byte, 8)
	p.Space.Read(0x1000, code)
	if code[0] != 0x01 || code[7] != 0xef {
		t.Fatalf("code not copied: %x", code)
	}
	rs := p.Space.Regions()
	if len(rs) != 2 || rs[0].Desc != "code" || rs[1].Desc != "stack" || rs[1].Addr+rs[1].Size != testRAM {
		t.Fatalf("regions:\n%s", rs)
	}

	sp := uint64(p.Frame.Reg(cpu.SP))
	if sp%8 != 0 || sp >= testRAM {
		t.Fatalf("sp %#x", sp)
	}
	if argc := word(t, p, sp); argc != 3 || p.Frame.Reg(cpu.R0) != 3 {
		t.Fatalf("argc %d", argc)
	}
	arg1, _ := p.Space.ReadStrAt(uint64(word(t, p, sp+8)))
	if arg1 != "-c" {
		t.Fatalf("argv[1] = %q", arg1)
	}
	if word(t, p, sp+16) != 0 {
		t.Fatal("argv not NULL terminated")
	}
	env, _ := p.Space.ReadStrAt(uint64(word(t, p, uint64(p.Frame.Reg(cpu.R2)))))
	if env != "HOME=/" {
		t.Fatalf("envp[0] = %q", env)
	}
	check(t, m)
}

func TestLoadRejectsBadImage(t *testing.T) {
	m := newTable(t, 4)
	free := m.MMU().Frames().FreeFrames()
	if _, err := m.Load([]byte("not an executable"), nil, nil); errors.Cause(err) != models.ENOEXEC {
		t.Fatalf("expecting ENOEXEC, got %v", err)
	}
	if m.MMU().Frames().FreeFrames() != free {
		t.Fatal("failed load leaked frames")
	}
	check(t, m)
}

func TestForkScenario(t *testing.T) {
	m := newTable(t, 4)
	h, parent := load(t, m)
	if _, err := m.Brk(h, BrkBase+3*cpu.PAGE_SIZE); err != nil {
		t.Fatal(err)
	}
	if parent.BrkPages != 3 {
		t.Fatalf("brk pages %d", parent.BrkPages)
	}
	parent.Space.Write(BrkBase+0x10, []byte("sentinel"))
	parent.Frame.SetReg(cpu.R0, 2)

	_, child := fork(t, m, h)
	pr, cr := parent.Space.Regions(), child.Space.Regions()
	if len(cr) != 5 || len(pr) != 5 {
		t.Fatalf("child has %d regions, parent %d", len(cr), len(pr))
	}
	for i := range pr {
		a := make([]byte, pr[i].Size)
		b := make([]byte, cr[i].Size)
		parent.Space.Read(pr[i].Addr, a)
		child.Space.Read(cr[i].Addr, b)
		if !bytes.Equal(a, b) {
			t.Fatalf("region %s differs", pr[i])
		}
		pp, _ := parent.Space.Translate(pr[i].Addr)
		cp, _ := child.Space.Translate(cr[i].Addr)
		if pp == cp {
			t.Fatalf("region %s shares frame %#x", pr[i], pp)
		}
	}
	if child.Frame.Reg(cpu.R0) != 0 || parent.Frame.Reg(cpu.R0) != 2 {
		t.Fatal("fork result not forced to 0 in the child only")
	}
	if child.Ppid != parent.Pid || child.Brk != parent.Brk {
		t.Fatalf("child %+v", child)
	}

	// isolation both ways
	child.Space.Write(BrkBase+0x10, []byte("CHILD!!!"))
	parent.Space.Write(BrkBase+0x20, []byte("PARENT"))
	buf := make([]byte, 8)
	parent.Space.Read(BrkBase+0x10, buf)
	if string(buf) != "sentinel" {
		t.Fatalf("parent sees %q", buf)
	}
	child.Space.Read(BrkBase+0x20, buf[:6])
	if bytes.Equal(buf[:6], []byte("PARENT")) {
		t.Fatal("child sees the parent's write")
	}
	check(t, m)
}

func TestForkSharesFiles(t *testing.T) {
	m := newTable(t, 4)
	h, parent := load(t, m)
	ref := vfs.NewRef(nil, "/dev/tty")
	parent.Install(&File{Ref: ref, Pos: 3})
	_, child := fork(t, m, h)
	if ref.Refs() != 2 {
		t.Fatalf("refs %d after fork", ref.Refs())
	}
	f, err := child.Fd(0)
	if err != nil || f.Ref != ref || f.Pos != 3 {
		t.Fatalf("child fd 0: %+v, %v", f, err)
	}
	f.Pos = 10
	if pf, _ := parent.Fd(0); pf.Pos != 3 {
		t.Fatal("descriptor position shared with the child")
	}
}

func TestForkFailureRollsBack(t *testing.T) {
	m := newTable(t, 4)
	h, _ := load(t, m)
	frames := m.MMU().Frames()
	// leave less than a code section free
	free := frames.FreeFrames()
	frames.Alloc(free - 100)
	before := frames.FreeFrames()
	if _, err := m.Fork(h); errors.Cause(err) != models.ENOMEM {
		t.Fatalf("expecting ENOMEM, got %v", err)
	}
	if frames.FreeFrames() != before {
		t.Fatalf("failed fork leaked %d frames", before-frames.FreeFrames())
	}
	if a, _, _, _ := m.Count(); a != 1 {
		t.Fatalf("%d active after failed fork", a)
	}
	check(t, m)
}

func TestRoundRobinFairness(t *testing.T) {
	m := newTable(t, 8)
	h, _ := load(t, m)
	for i := 0; i < 4; i++ {
		fork(t, m, h)
	}
	k := len(m.Active())
	for round := 0; round < 3; round++ {
		seen := make(map[Handle]int)
		for i := 0; i < k; i++ {
			next, err := m.Next()
			if err != nil {
				t.Fatal(err)
			}
			seen[next]++
		}
		if len(seen) != k {
			t.Fatalf("round %d visited %d of %d processes", round, len(seen), k)
		}
	}
}

func TestSwapRemoveReorders(t *testing.T) {
	m := newTable(t, 8)
	a, _ := load(t, m)
	b, _ := fork(t, m, a)
	c, _ := fork(t, m, a)
	d, _ := fork(t, m, a)
	if got := m.Active(); len(got) != 4 || got[1] != b {
		t.Fatalf("active %v", got)
	}
	// b leaves the active set, d takes its place
	m.Exit(b, models.ExitCode(0))
	got := m.Active()
	want := []Handle{a, d, c}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active %v, expecting %v", got, want)
		}
	}
	check(t, m)
}

func TestNextEmpty(t *testing.T) {
	m := newTable(t, 2)
	if _, err := m.Next(); err != ErrNoProcess {
		t.Fatalf("expecting ErrNoProcess, got %v", err)
	}
}

func TestWaitExitLiveness(t *testing.T) {
	m := newTable(t, 4)
	root, parent := load(t, m)
	ch, child := fork(t, m, root)
	statusAddr := uint32(BrkBase - 0x100)

	if pid, err := m.Wait(root, WaitAny, statusAddr, 0); err != nil || pid != 0 {
		t.Fatalf("wait = %d, %v", pid, err)
	}
	if parent.Status != Waiting {
		t.Fatalf("parent is %s", parent.Status)
	}
	for _, h := range m.Active() {
		if h == root {
			t.Fatal("waiting parent still in the active set")
		}
	}
	check(t, m)

	pid := child.Pid
	if err := m.Exit(ch, models.ExitCode(7)); err != nil {
		t.Fatal(err)
	}
	if parent.Status != Active {
		t.Fatalf("parent is %s after child exit", parent.Status)
	}
	if parent.Frame.Reg(cpu.R0) != uint32(pid) {
		t.Fatalf("parent r0 = %d, expecting %d", parent.Frame.Reg(cpu.R0), pid)
	}
	if got := word(t, parent, uint64(statusAddr)); got != 7<<8 {
		t.Fatalf("status %#x", got)
	}
	if _, err := m.Get(ch); errors.Cause(err) != ErrStaleHandle {
		t.Fatal("reaped child handle still resolves")
	}
	check(t, m)
}

func TestKillScenario(t *testing.T) {
	m := newTable(t, 8)
	root, _ := load(t, m)
	var five Handle
	for i := 1; i <= 5; i++ {
		h, p := fork(t, m, root)
		if p.Pid == 5 {
			five = h
		}
	}
	if err := m.Signal(root, 5, SIGTERM); err != nil {
		t.Fatal(err)
	}
	p5, err := m.Get(five)
	if err != nil || p5.Status != Zombie {
		t.Fatalf("pid 5: %v %v", p5, err)
	}
	if p5.Space != nil {
		t.Fatal("zombie kept its address space")
	}
	statusAddr := uint32(BrkBase - 0x100)
	pid, err := m.Wait(root, WaitAny, statusAddr, 0)
	if err != nil || pid != 5 {
		t.Fatalf("wait = %d, %v", pid, err)
	}
	rp, _ := m.Get(root)
	if got := word(t, rp, uint64(statusAddr)); got != SIGTERM<<8|1 {
		t.Fatalf("status %#x", got)
	}
	check(t, m)
}

func TestWaitErrors(t *testing.T) {
	m := newTable(t, 4)
	root, _ := load(t, m)
	if _, err := m.Wait(root, WaitAny, 0, 0); err != models.ECHILD {
		t.Fatalf("no children: %v", err)
	}
	ch, child := fork(t, m, root)
	// the slot is cleared once the child is reaped
	pid := child.Pid
	if _, err := m.Wait(root, pid+1, 0, 0); err != models.ECHILD {
		t.Fatalf("not a child: %v", err)
	}
	if _, err := m.Wait(root, -3, 0, 0); err != models.EINVAL {
		t.Fatalf("process group: %v", err)
	}
	if got, err := m.Wait(root, pid, 0, WNOHANG); got != 0 || err != nil {
		t.Fatalf("WNOHANG = %d, %v", got, err)
	}
	rp, _ := m.Get(root)
	if rp.Status != Active {
		t.Fatal("WNOHANG wait blocked")
	}
	// a specific wait ignores other zombies
	ch2, _ := fork(t, m, root)
	m.Exit(ch2, models.ExitCode(1))
	m.Wait(root, pid, 0, 0)
	if rp.Status != Waiting {
		t.Fatal("wait for a live child did not block")
	}
	m.Exit(ch, models.ExitCode(2))
	if rp.Status != Active || rp.Frame.Reg(cpu.R0) != uint32(pid) {
		t.Fatalf("parent %s r0=%d", rp.Status, rp.Frame.Reg(cpu.R0))
	}
	check(t, m)
}

func TestReparentToRoot(t *testing.T) {
	m := newTable(t, 8)
	root, rp := load(t, m)
	mid, _ := fork(t, m, root)
	leaf, leafp := fork(t, m, mid)
	leafPid := leafp.Pid
	m.Exit(leaf, models.ExitCode(3))
	if leafp.Status != Zombie {
		t.Fatal("leaf not a zombie")
	}
	m.Wait(root, WaitAny, 0, 0)
	// mid exits while root waits: mid is delivered, the orphaned leaf stays a zombie
	m.Exit(mid, models.ExitCode(0))
	if rp.Status != Active {
		t.Fatal("root not woken by its child")
	}
	_, orphan, ok := m.ByPid(leafPid)
	if !ok || orphan.Ppid != 0 || orphan.Status != Zombie {
		t.Fatalf("orphan %v", orphan)
	}
	// a later wait collects the orphan
	if pid, _ := m.Wait(root, WaitAny, 0, 0); pid != leafPid {
		t.Fatalf("root reaped %d, expecting %d", pid, leafPid)
	}
	check(t, m)
}

func TestOrphanDeliveredToWaitingRoot(t *testing.T) {
	m := newTable(t, 8)
	root, rp := load(t, m)
	other, _ := fork(t, m, root)
	mid, _ := fork(t, m, other)
	leaf, leafp := fork(t, m, mid)
	leafPid := leafp.Pid
	m.Exit(leaf, models.ExitCode(4))
	m.Wait(root, WaitAny, 0, 0)
	// mid is not root's child: root stays waiting until the orphaned zombie arrives
	m.Exit(mid, models.ExitCode(0))
	if rp.Status != Active || rp.Frame.Reg(cpu.R0) != uint32(leafPid) {
		t.Fatalf("root %s r0=%d, expecting orphan %d", rp.Status, rp.Frame.Reg(cpu.R0), leafPid)
	}
	check(t, m)
}

func TestRootExit(t *testing.T) {
	m := newTable(t, 2)
	root, _ := load(t, m)
	if err := m.Exit(root, 0); errors.Cause(err) != ErrRootExit {
		t.Fatalf("expecting ErrRootExit, got %v", err)
	}
}

func TestTableFull(t *testing.T) {
	m := newTable(t, 2)
	root, _ := load(t, m)
	fork(t, m, root)
	if _, err := m.Fork(root); errors.Cause(err) != models.EAGAIN {
		t.Fatalf("expecting EAGAIN, got %v", err)
	}
	check(t, m)
}

func TestStaleHandle(t *testing.T) {
	m := newTable(t, 2)
	root, _ := load(t, m)
	ch, _ := fork(t, m, root)
	m.Exit(ch, 0)
	m.Wait(root, WaitAny, 0, 0)
	// the slot is reused by the next fork
	ch2, _ := fork(t, m, root)
	if ch2.Index != ch.Index {
		t.Fatalf("slot %d not reused", ch.Index)
	}
	if _, err := m.Get(ch); errors.Cause(err) != ErrStaleHandle {
		t.Fatal("old handle aliases the new process")
	}
}

func TestExec(t *testing.T) {
	m := newTable(t, 4)
	root, _ := load(t, m)
	ch, child := fork(t, m, root)
	ref := vfs.NewRef(nil, "/dev/tty")
	child.Install(&File{Ref: ref})
	m.SetHandler(ch, SIGUSR1, 0x2000, 0x42)
	m.Brk(ch, BrkBase+cpu.PAGE_SIZE)
	pid, ppid := child.Pid, child.Ppid

	img := mock.Program(0x4000, []byte{1, 2, 3, 4})
	if err := m.Exec(ch, img, []string{"/bin/cat", "f"}, nil); err != nil {
		t.Fatal(err)
	}
	if child.Pid != pid || child.Ppid != ppid || child.Name != "cat" {
		t.Fatalf("identity changed: %+v", child)
	}
	if f, err := child.Fd(0); err != nil || f.Ref != ref {
		t.Fatal("descriptors not kept")
	}
	if h, ok := child.Handler(SIGUSR1); !ok || h.Handler != 0x2000 {
		t.Fatal("signal handlers not carried over")
	}
	if child.Frame.Reg(cpu.PC) != 0x4000 || child.Brk != BrkBase || len(child.Space.Regions()) != 2 {
		t.Fatalf("new image not installed: %s brk=%#x", &child.Frame, child.Brk)
	}

	before := *child
	if err := m.Exec(ch, []byte("junk"), nil, nil); errors.Cause(err) != models.ENOEXEC {
		t.Fatalf("expecting ENOEXEC, got %v", err)
	}
	if child.Space != before.Space || child.Frame != before.Frame {
		t.Fatal("failed exec changed the process")
	}
	check(t, m)
}

func TestBrk(t *testing.T) {
	m := newTable(t, 2)
	h, p := load(t, m)
	if got, _ := m.Brk(h, 0); got != BrkBase {
		t.Fatalf("brk(0) = %#x", got)
	}
	if got, _ := m.Brk(h, BrkBase+0x1800); got != BrkBase+0x1800 || p.BrkPages != 2 {
		t.Fatalf("brk = %#x with %d pages", got, p.BrkPages)
	}
	if err := p.Space.Write(BrkBase+0x17ff, []byte{1}); err != nil {
		t.Fatal(err)
	}
	// shrink releases pages
	free := m.MMU().Frames().FreeFrames()
	m.Brk(h, BrkBase+0x10)
	if p.BrkPages != 1 || m.MMU().Frames().FreeFrames() != free+1 {
		t.Fatalf("%d pages after shrink", p.BrkPages)
	}
	if _, err := p.Space.Translate(BrkBase + 0x1000); err == nil {
		t.Fatal("released brk page still mapped")
	}
	// into the stack
	if got, _ := m.Brk(h, m.StackTop()-0x10); got != BrkBase+0x10 {
		t.Fatalf("brk into the stack = %#x", got)
	}
	check(t, m)
}

func TestBrkExhaustionIsRecoverable(t *testing.T) {
	m := newTable(t, 2)
	h, p := load(t, m)
	// map the brk second-level table up front
	m.Brk(h, BrkBase+1)
	m.Brk(h, BrkBase)
	frames := m.MMU().Frames()
	frames.Alloc(frames.FreeFrames() - 3)
	before := frames.FreeFrames()
	got, err := m.Brk(h, BrkBase+10*cpu.PAGE_SIZE)
	if err != nil || got != BrkBase {
		t.Fatalf("brk = %#x, %v", got, err)
	}
	if p.BrkPages != 0 || frames.FreeFrames() != before {
		t.Fatal("failed brk kept pages")
	}
	check(t, m)
}

func TestSignalHandler(t *testing.T) {
	m := newTable(t, 4)
	root, _ := load(t, m)
	ch, child := fork(t, m, root)
	if _, err := m.SetHandler(ch, SIGKILL, 0x2000, 0); err != models.EINVAL {
		t.Fatalf("catching SIGKILL: %v", err)
	}
	m.SetHandler(ch, SIGUSR1, 0x2000, 0x99)
	pc := child.Frame.Reg(cpu.PC)

	// interrupt a blocked read
	child.Frame.SetReg(cpu.R0, 0)
	m.Block(ch)
	if err := m.Signal(root, child.Pid, SIGUSR1); err != nil {
		t.Fatal(err)
	}
	if child.Status != Active {
		t.Fatalf("child is %s after signal", child.Status)
	}
	f := child.Frame
	if f.Reg(cpu.PC) != 0x2000 || f.Reg(cpu.R0) != SIGUSR1 || f.Reg(cpu.R1) != 0x99 {
		t.Fatalf("handler frame %s", &f)
	}
	if err := m.Sigreturn(ch); err != nil {
		t.Fatal(err)
	}
	if child.Frame.Reg(cpu.PC) != pc || child.Frame.Reg(cpu.R0) != uint32(models.EINTR.Ret()) {
		t.Fatalf("resumed frame %s", &child.Frame)
	}
	if err := m.Sigreturn(ch); err != models.EINVAL {
		t.Fatalf("sigreturn outside a handler: %v", err)
	}

	// SIGKILL ignores the handler table
	m.SetHandler(ch, SIGTERM, 0x3000, 0)
	m.Signal(root, child.Pid, SIGKILL)
	if child.Status != Zombie || child.ExitStatus != SIGKILL<<8|1 {
		t.Fatalf("child %s status %#x", child.Status, child.ExitStatus)
	}
	check(t, m)
}

func TestSignalErrors(t *testing.T) {
	m := newTable(t, 4)
	root, _ := load(t, m)
	tests := []struct {
		pid, sig int
		err      error
	}{
		{1, 3, models.EINVAL},
		{42, SIGTERM, models.ESRCH},
		{0, SIGTERM, models.EINVAL},
		{-2, SIGTERM, models.EINVAL},
		// only the root is alive
		{-1, SIGTERM, models.ESRCH},
	}
	for _, test := range tests {
		if err := m.Signal(root, test.pid, test.sig); err != test.err {
			t.Errorf("kill(%d, %d) = %v, expecting %v", test.pid, test.sig, err, test.err)
		}
	}
}

func TestBroadcastSparesRoot(t *testing.T) {
	m := newTable(t, 8)
	root, rp := load(t, m)
	a, ap := fork(t, m, root)
	_, bp := fork(t, m, root)
	// the caller is hit too
	if err := m.Signal(a, -1, SIGINT); err != nil {
		t.Fatal(err)
	}
	if rp.Status != Active {
		t.Fatal("broadcast reached the root")
	}
	if ap.Status != Zombie || bp.Status != Zombie {
		t.Fatalf("a %s, b %s", ap.Status, bp.Status)
	}
	check(t, m)
}

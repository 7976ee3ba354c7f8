package proc

import (
	"github.com/math-fehr/WindOS-sub000/go/models"
)

// Fd returns the open file behind a descriptor.
func (p *Process) Fd(fd int) (*File, error) {
	if fd < 0 || fd >= len(p.Files) || p.Files[fd] == nil {
		return nil, models.EBADF
	}
	return p.Files[fd], nil
}

// Install puts f in the lowest free descriptor.
func (p *Process) Install(f *File) (int, error) {
	for fd, cur := range p.Files {
		if cur == nil {
			p.Files[fd] = f
			return fd, nil
		}
	}
	return -1, models.EMFILE
}

// InstallAt puts f at fd, closing what was there.
func (p *Process) InstallAt(fd int, f *File) error {
	if fd < 0 || fd >= len(p.Files) {
		return models.EBADF
	}
	if cur := p.Files[fd]; cur != nil {
		cur.Ref.Put()
	}
	p.Files[fd] = f
	return nil
}

func (p *Process) Close(fd int) error {
	f, err := p.Fd(fd)
	if err != nil {
		return err
	}
	p.Files[fd] = nil
	return f.Ref.Put()
}

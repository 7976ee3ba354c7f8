package models

import "strings"

// Uname is struct new_utsname. Pad turns every field into a fixed size NUL padded array.
type Uname struct {
	Sysname    string
	Nodename   string
	Release    string
	Version    string
	Machine    string
	Domainname string
}

func pad(s string, length int) string {
	if len(s)+1 > length {
		s = s[:length-1]
	}
	return s + strings.Repeat("\x00", length-len(s))
}

func (u *Uname) Pad(length int) {
	for _, f := range []*string{&u.Sysname, &u.Nodename, &u.Release, &u.Version, &u.Machine, &u.Domainname} {
		*f = pad(*f, length)
	}
}

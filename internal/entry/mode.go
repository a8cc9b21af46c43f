package entry

import "io/fs"

var modeBits = [3][3]fs.FileMode{
	{0o400, 0o200, 0o100},
	{0o040, 0o020, 0o010},
	{0o004, 0o002, 0o001},
}

// SetMode sets the permissions of m from the permission bits of mode.
func SetMode(m Mutable, mode fs.FileMode) {
	for _, e := range []Entity{User, Group, Other} {
		for i, a := range []Access{Read, Write, Execute} {
			m.SetPermitted(a, e, Bool(mode&modeBits[e][i] != 0))
		}
	}
}

// Mode returns the permission bits of e. Unknown permissions default to the
// bits of def.
func Mode(e Entry, def fs.FileMode) fs.FileMode {
	var mode fs.FileMode

	for _, en := range []Entity{User, Group, Other} {
		for i, a := range []Access{Read, Write, Execute} {
			bit := modeBits[en][i]

			p := e.Permitted(a, en)
			if (p == nil && def&bit != 0) || (p != nil && *p) {
				mode |= bit
			}
		}
	}

	return mode
}

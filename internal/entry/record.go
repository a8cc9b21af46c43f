package entry

import (
	"sort"
	"sync"
)

const permCount = 4 * 3

// Record is a plain, mutable [Entry] implementation. Drivers embed it into
// their format specific entries; controllers use it for synthesized entries
// such as implicit directories.
type Record struct {
	mu      sync.RWMutex
	name    string
	typ     Type
	sizes   [2]int64
	times   [4]int64
	perms   [permCount]*bool
	members map[string]struct{}
}

// NewRecord returns a pointer to a new [Record] with all sizes and times set
// to [Unknown]. If template is not nil, its metadata is copied.
func NewRecord(name string, typ Type, template Entry) *Record {
	r := &Record{
		name:  Clean(name),
		typ:   typ,
		sizes: [2]int64{Unknown, Unknown},
		times: [4]int64{Unknown, Unknown, Unknown, Unknown},
	}

	if template != nil {
		Copy(r, template)
	}

	return r
}

// Copy copies sizes, times and permissions of src into dst. The name and type
// of dst are not touched.
func Copy(dst Mutable, src Entry) {
	dst.SetSize(DataSize, src.Size(DataSize))
	dst.SetSize(StorageSize, src.Size(StorageSize))

	for _, a := range []Access{Create, Read, Write, Execute} {
		dst.SetTime(a, src.Time(a))

		for _, e := range []Entity{User, Group, Other} {
			dst.SetPermitted(a, e, src.Permitted(a, e))
		}
	}
}

func (r *Record) Name() string {
	return r.name
}

func (r *Record) Type() Type {
	return r.typ
}

func (r *Record) Size(kind SizeKind) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sizes[kind]
}

func (r *Record) SetSize(kind SizeKind, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sizes[kind] = size
}

func (r *Record) Time(access Access) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.times[access]
}

func (r *Record) SetTime(access Access, millis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.times[access] = millis
}

func (r *Record) Permitted(access Access, entity Entity) *bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := r.perms[int(access)*3+int(entity)]
	if p == nil {
		return nil
	}
	v := *p

	return &v
}

func (r *Record) SetPermitted(access Access, entity Entity, value *bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value == nil {
		r.perms[int(access)*3+int(entity)] = nil

		return
	}
	v := *value
	r.perms[int(access)*3+int(entity)] = &v
}

// AddMember records a member name of a directory record.
func (r *Record) AddMember(member string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members == nil {
		r.members = make(map[string]struct{})
	}
	if _, exists := r.members[member]; exists {
		return false
	}
	r.members[member] = struct{}{}

	return true
}

// RemoveMember removes a member name of a directory record.
func (r *Record) RemoveMember(member string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, member)
}

// Members returns the sorted member names of a directory record.
func (r *Record) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	sort.Strings(members)

	return members
}

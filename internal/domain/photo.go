package domain

// Photo is a reference to a profile or chat photo. The file itself is owned
// by the file manager; the cache only tracks which photo is current.
type Photo struct {
	ID       int64
	DCID     int
	HasVideo bool
	Stripped []byte
}

// IsEmpty reports whether no photo is set.
func (p Photo) IsEmpty() bool {
	return p.ID == 0
}

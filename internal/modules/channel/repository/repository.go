package repository

// Repository is the storage collaborator behind the channel registry.
// Records are opaque bytes keyed by a normalized channel id, one record per id.
type Repository interface {
	// Init creates the storage folder. created is false when it already existed.
	Init() (created bool, err error)
	List() ([]string, error)
	Read(id string) ([]byte, error)
	// Write fully replaces the record for id.
	Write(id string, data []byte) error
	// Delete removes the record for id; a missing record is not an error.
	Delete(id string) error
}

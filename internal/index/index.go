package index

// MessageIndex defines the interface for index operations. Consumers should
// depend on this interface rather than the concrete *DB type to facilitate
// testing with mocks.
type MessageIndex interface {
	Put(row Row) error
	Demote(tenant, cid string) error
	DeleteByCID(tenant, cid string) error
	Entries(tenant, recordID string) ([]Row, error)
	Query(tenant string, f Filter) ([]Row, error)
	NewestProtocol(tenant, protocol string) (*Row, error)
	Close() error
}

// Verify *DB satisfies MessageIndex at compile time.
var _ MessageIndex = (*DB)(nil)

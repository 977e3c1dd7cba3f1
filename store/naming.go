package store

// NamingStrategy maps a model table name to the physical DynamoDB table name.
type NamingStrategy interface {
	TableName(name string) string
}

// IdentityNaming uses model table names unchanged.
type IdentityNaming struct{}

// TableName returns name.
func (IdentityNaming) TableName(name string) string { return name }

// DirectoryPrefixedNaming prepends a fixed prefix, so that several deployments can share an
// account. An empty prefix behaves like IdentityNaming.
type DirectoryPrefixedNaming struct {
	Prefix string
}

// TableName returns Prefix followed by name.
func (n DirectoryPrefixedNaming) TableName(name string) string {
	return n.Prefix + name
}

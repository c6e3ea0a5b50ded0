package permitloader

import (
	"context"

	"golang.org/x/xerrors"
)

// Credentials hold the warehouse secrets.
type Credentials struct {
	Token    string
	Database string

	// Schemas maps schema keys like "schema_21" to warehouse schema names.
	Schemas map[string]string
}

// Schema resolves a schema key.
func (c *Credentials) Schema(key string) (string, error) {
	s, ok := c.Schemas[key]
	if !ok || s == "" {
		return "", xerrors.Errorf("schema %q is not found in credentials", key)
	}
	return s, nil
}

// CredentialProvider resolves warehouse credentials.
type CredentialProvider interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// StaticCredentials is a CredentialProvider returning fixed credentials.
type StaticCredentials Credentials

// Credentials implements CredentialProvider.
func (s *StaticCredentials) Credentials(_ context.Context) (*Credentials, error) {
	c := Credentials(*s)
	return &c, nil
}

package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., gateway secret key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for retrieving gateway credentials
// from a secret management service. Supported backends: AWS Secrets
// Manager, HashiCorp Vault, environment variables (local development).
// Implementations own authentication with the backend and cache secrets
// appropriately.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - AWS: "bnpl-service/gateway/secret-key" or a full ARN
	//   - Vault: "secret/data/bnpl-service/gateway"
	//   - Env: the environment variable name
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. The variable name
// is the prefix followed by the upper-cased secret name with hyphens and
// dots replaced by underscores: "internal-auth" becomes
// "SPENDCAP_SECRET_INTERNAL_AUTH".
type EnvProvider struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider with the given prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, lookup: os.LookupEnv}
}

// GetSecret implements Provider. An empty variable counts as unset.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envVar := p.VarName(name)
	value, ok := p.lookup(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, envVar)
	}
	return value, nil
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

// VarName returns the environment variable consulted for name.
func (p *EnvProvider) VarName(name string) string {
	return p.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

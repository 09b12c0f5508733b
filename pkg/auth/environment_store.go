package auth

import (
	"os"
	"time"
)

// Token variables, in lookup order
var tokenEnvVars = []string{"MRSYNC_GITLAB_TOKEN", "GITLAB_TOKEN"}

// EnvironmentStore reads a token from the environment. It is read-only and
// answers for any host.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(host string) (*Credential, error) {
	token := envToken()
	if token == "" {
		return nil, ErrCredentialsNotFound
	}
	if host == "" {
		host = "default"
	}
	return &Credential{Host: host, Token: token, LastModified: time.Now()}, nil
}

func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

func (e *EnvironmentStore) Delete(host string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(host string) bool {
	return envToken() != ""
}

func envToken() string {
	for _, name := range tokenEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

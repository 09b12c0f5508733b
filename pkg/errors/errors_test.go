package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Source(SourceGraphQL, 0, "Field 'group' doesn't exist")
	assert.Equal(t, "source/graphql error: Field 'group' doesn't exist", err.Error())

	wrapped := Wrap(KindSerialization, "store snapshot", stderrors.New("disk full"))
	assert.Equal(t, "store snapshot: serialization error: disk full", wrapped.Error())

	coded := Source(SourceServer, 502, "bad gateway")
	assert.Contains(t, coded.Error(), "(code 502)")
}

func TestKindThroughWrapping(t *testing.T) {
	base := Configf("squad mapping is empty")
	err := fmt.Errorf("load squads: %w", base)

	assert.True(t, IsKind(err, KindConfig))
	assert.False(t, IsKind(err, KindSource))

	_, ok := KindOf(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", Source(SourceNetwork, 0, "reset"), true},
		{"rate limit", Source(SourceRateLimit, 429, "slow down"), true},
		{"server", Source(SourceServer, 503, "unavailable"), true},
		{"auth", Source(SourceAuth, 401, "bad token"), false},
		{"graphql", Source(SourceGraphQL, 0, "bad query"), false},
		{"config", Configf("nope"), false},
		{"plain", stderrors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSourceTypeForStatus(t *testing.T) {
	assert.Equal(t, SourceNetwork, SourceTypeForStatus(0))
	assert.Equal(t, SourceAuth, SourceTypeForStatus(401))
	assert.Equal(t, SourceAuth, SourceTypeForStatus(403))
	assert.Equal(t, SourceNotFound, SourceTypeForStatus(404))
	assert.Equal(t, SourceRateLimit, SourceTypeForStatus(429))
	assert.Equal(t, SourceServer, SourceTypeForStatus(504))
	assert.Equal(t, SourceUnknown, SourceTypeForStatus(418))
}

package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mrsync/pkg/config"
)

func TestListGroupProjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/groups/acme/projects", r.URL.Path)
		assert.Equal(t, "glpat-test", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "true", r.URL.Query().Get("include_subgroups"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("X-Next-Page", "2")
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 42, "path_with_namespace": "acme/payments-api"},
			})
			return
		}
		fmt.Fprint(w, `[{"id": 7, "path_with_namespace": "acme/mobile/app"}]`)
	}))
	defer server.Close()

	lister, err := NewProjectLister(config.GitLabConfig{URL: server.URL, Token: "glpat-test"}, nil)
	require.NoError(t, err)

	projects, err := lister.ListGroupProjects(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "42", projects[0].ID)
	assert.Equal(t, "acme/payments-api", projects[0].Path)
	assert.Equal(t, "7", projects[1].ID)
}

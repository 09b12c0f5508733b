package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gogitlab "github.com/xanzy/go-gitlab"
	"mrsync/pkg/config"
	"mrsync/pkg/enrich"
)

// ProjectLister lists the projects of a group through the REST API
type ProjectLister struct {
	client *gogitlab.Client
}

// NewProjectLister creates a REST client for cfg.URL
func NewProjectLister(cfg config.GitLabConfig, hc *http.Client) (*ProjectLister, error) {
	opts := []gogitlab.ClientOptionFunc{
		gogitlab.WithBaseURL(strings.TrimRight(cfg.URL, "/") + "/api/v4"),
	}
	if hc != nil {
		opts = append(opts, gogitlab.WithHTTPClient(hc))
	}

	client, err := gogitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &ProjectLister{client: client}, nil
}

// ListGroupProjects returns every project of group, subgroups included
func (l *ProjectLister) ListGroupProjects(ctx context.Context, group string) ([]enrich.Project, error) {
	opt := &gogitlab.ListGroupProjectsOptions{
		ListOptions:      gogitlab.ListOptions{PerPage: 100, Page: 1},
		IncludeSubGroups: gogitlab.Ptr(true),
		Archived:         gogitlab.Ptr(false),
	}

	var projects []enrich.Project
	for {
		page, resp, err := l.client.Groups.ListGroupProjects(group, opt, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing group projects: %w", err)
		}
		for _, p := range page {
			projects = append(projects, enrich.Project{
				ID:   strconv.Itoa(p.ID),
				Path: p.PathWithNamespace,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return projects, nil
}

package gitlab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mrsync/pkg/errors"
	"mrsync/pkg/models"
	"mrsync/pkg/retry"
)

// MergeRequestsQuery pages through the merge requests of a group and its subgroups
const MergeRequestsQuery = `query($fullPath: ID!, $first: Int!, $after: String, $createdAfter: Time, $createdBefore: Time) {
  group(fullPath: $fullPath) {
    mergeRequests(
      includeSubgroups: true
      first: $first
      after: $after
      createdAfter: $createdAfter
      createdBefore: $createdBefore
    ) {
      count
      pageInfo {
        endCursor
        hasNextPage
      }
      nodes {
        id
        iid
        title
        description
        project {
          id
          name
        }
        createdAt
        author {
          name
          username
        }
        mergedAt
        mergeUser {
          name
          username
        }
        approvedBy {
          nodes {
            name
            username
          }
        }
        commenters {
          nodes {
            name
            username
          }
        }
        state
        webUrl
      }
    }
  }
}`

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type mergeRequestsResponse struct {
	Data *struct {
		Group *struct {
			MergeRequests *mergeRequestConnection `json:"mergeRequests"`
		} `json:"group"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type mergeRequestConnection struct {
	Count    int `json:"count"`
	PageInfo struct {
		EndCursor   *string `json:"endCursor"`
		HasNextPage bool    `json:"hasNextPage"`
	} `json:"pageInfo"`
	Nodes []mergeRequestNode `json:"nodes"`
}

type userNode struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type userConnection struct {
	Nodes []userNode `json:"nodes"`
}

type mergeRequestNode struct {
	ID          string  `json:"id"`
	IID         string  `json:"iid"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Project     struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
	CreatedAt  time.Time       `json:"createdAt"`
	Author     *userNode       `json:"author"`
	MergedAt   *time.Time      `json:"mergedAt"`
	MergeUser  *userNode       `json:"mergeUser"`
	ApprovedBy *userConnection `json:"approvedBy"`
	Commenters *userConnection `json:"commenters"`
	State      string          `json:"state"`
	WebURL     string          `json:"webUrl"`
}

// FetchMergeRequests requests one page of merge requests
func (c *Client) FetchMergeRequests(ctx context.Context, req models.PageRequest) (*models.Page, error) {
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (*models.Page, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.fetchPage(ctx, req)
	})
}

func (c *Client) fetchPage(ctx context.Context, req models.PageRequest) (*models.Page, error) {
	vars := map[string]interface{}{
		"fullPath": req.GroupPath,
		"first":    req.First,
	}
	if req.After != "" {
		vars["after"] = req.After
	}
	if !req.CreatedAfter.IsZero() {
		vars["createdAfter"] = req.CreatedAfter.UTC().Format(timeLayout)
	}
	if !req.CreatedBefore.IsZero() {
		vars["createdBefore"] = req.CreatedBefore.UTC().Format(timeLayout)
	}

	c.logger.DebugWithFields("Fetching merge request page", map[string]interface{}{
		"group": req.GroupPath,
		"first": req.First,
		"after": req.After,
	})

	var resp mergeRequestsResponse
	if err := c.postJSON(ctx, graphQLPath, graphQLRequest{Query: MergeRequestsQuery, Variables: vars}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		c.logger.ErrorWithFields("GraphQL errors", map[string]interface{}{
			"errors": messages,
		})
		return nil, errors.Source(errors.SourceGraphQL, 0, strings.Join(messages, "; "))
	}

	if resp.Data == nil || resp.Data.Group == nil {
		return nil, errors.Source(errors.SourceShape, 0,
			fmt.Sprintf("group %q not found or not accessible", req.GroupPath))
	}
	conn := resp.Data.Group.MergeRequests
	if conn == nil {
		return nil, errors.Source(errors.SourceShape, 0, "response has no data.group.mergeRequests")
	}

	page := &models.Page{
		Records:     make([]models.MergeRequest, 0, len(conn.Nodes)),
		HasNextPage: conn.PageInfo.HasNextPage,
		TotalCount:  conn.Count,
	}
	if conn.PageInfo.EndCursor != nil {
		page.EndCursor = *conn.PageInfo.EndCursor
	}
	for _, node := range conn.Nodes {
		page.Records = append(page.Records, node.toModel())
	}
	return page, nil
}

func (n mergeRequestNode) toModel() models.MergeRequest {
	mr := models.MergeRequest{
		ID:          n.ID,
		IID:         n.IID,
		ProjectID:   n.Project.ID,
		ProjectName: n.Project.Name,
		Title:       n.Title,
		State:       n.State,
		CreatedAt:   n.CreatedAt.UTC(),
		WebURL:      n.WebURL,
		Approvals:   n.ApprovedBy.people(),
		Comments:    n.Commenters.people(),
	}
	if n.Description != nil {
		mr.Description = *n.Description
	}
	if n.Author != nil {
		mr.Author = models.Person{Name: n.Author.Name, Username: n.Author.Username}
	}
	if n.MergedAt != nil {
		t := n.MergedAt.UTC()
		mr.MergedAt = &t
	}
	if n.MergeUser != nil {
		mr.MergeUser = &models.Person{Name: n.MergeUser.Name, Username: n.MergeUser.Username}
	}
	return mr
}

func (uc *userConnection) people() []models.Person {
	if uc == nil {
		return []models.Person{}
	}
	out := make([]models.Person, 0, len(uc.Nodes))
	for _, u := range uc.Nodes {
		out = append(out, models.Person{Name: u.Name, Username: u.Username})
	}
	return out
}

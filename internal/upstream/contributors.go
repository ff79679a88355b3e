package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/release-hub/internal/apperr"
)

// contributorProjection 只保留贡献者的公开字段。
const contributorProjection = `{login,avatar_url,html_url,contributions}`

// RepositoryContributors 是单个仓库的贡献者列表。
type RepositoryContributors struct {
	Name         string          `json:"name"`
	Contributors json.RawMessage `json:"contributors"`
}

// ContributorsPayload 是 /contributors 的响应体。
type ContributorsPayload struct {
	Repositories []RepositoryContributors `json:"repositories"`
}

// Contributors 并发获取名称包含 marker 的仓库贡献者，结果保持输入顺序。
func (c *Client) Contributors(ctx context.Context, repos []string, marker string) (ContributorsPayload, error) {
	var selected []string
	for _, repo := range repos {
		if marker == "" || strings.Contains(repo, marker) {
			selected = append(selected, repo)
		}
	}

	results := make([]RepositoryContributors, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, repo := range selected {
		g.Go(func() error {
			list, err := c.RepositoryContributors(gctx, repo)
			if err != nil {
				return err
			}
			results[i] = RepositoryContributors{Name: repo, Contributors: list}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ContributorsPayload{}, err
	}
	return ContributorsPayload{Repositories: results}, nil
}

// RepositoryContributors 获取单个仓库的贡献者并投影为 login/avatar_url/html_url/contributions。
func (c *Client) RepositoryContributors(ctx context.Context, repo string) (json.RawMessage, error) {
	body, err := c.get(ctx, c.apiURL("/repos/"+repo+"/contributors"))
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: contributors of %s: unexpected payload", apperr.ErrUpstreamUnavailable, repo)
	}
	items := doc.Array()
	projected := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		projected = append(projected, json.RawMessage(item.Get(contributorProjection).Raw))
	}
	out, err := json.Marshal(projected)
	if err != nil {
		return nil, fmt.Errorf("encode contributors of %s: %w", repo, err)
	}
	return out, nil
}

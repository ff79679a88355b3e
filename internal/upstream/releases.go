package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/config"
)

// 发布选择器。其余取值按字面 tag 精确匹配。
const (
	SelectorLatest     = "latest"
	SelectorPrerelease = "prerelease"
	SelectorRecent     = "recent"
)

// Release 是发布记录中本服务关心的字段。
type Release struct {
	TagName     string
	Prerelease  bool
	Body        string
	TarballURL  string
	PublishedAt string
	Assets      []ReleaseAsset
}

// ReleaseAsset 是发布附件。
type ReleaseAsset struct {
	Name               string
	Size               int64
	UpdatedAt          string
	BrowserDownloadURL string
	ContentType        string
}

// Asset 是 /tools 响应中的单条记录。
type Asset struct {
	Repository         string `json:"repository"`
	Version            string `json:"version"`
	Timestamp          string `json:"timestamp"`
	Name               string `json:"name"`
	Size               *int64 `json:"size,omitempty"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
}

// ToolsPayload 是 /tools 的响应体。
type ToolsPayload struct {
	Tools []Asset `json:"tools"`
}

// Releases 按平台返回顺序列出仓库发布。
func (c *Client) Releases(ctx context.Context, repo string) ([]Release, error) {
	body, err := c.get(ctx, c.apiURL("/repos/"+repo+"/releases"))
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: releases of %s: unexpected payload", apperr.ErrUpstreamUnavailable, repo)
	}
	items := doc.Array()
	releases := make([]Release, 0, len(items))
	for _, item := range items {
		releases = append(releases, parseRelease(item))
	}
	return releases, nil
}

// LatestRelease 读取仓库的最新正式发布。
func (c *Client) LatestRelease(ctx context.Context, repo string) (Release, error) {
	body, err := c.get(ctx, c.apiURL("/repos/"+repo+"/releases/latest"))
	if err != nil {
		return Release{}, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Release{}, fmt.Errorf("%w: latest release of %s: unexpected payload", apperr.ErrUpstreamUnavailable, repo)
	}
	return parseRelease(doc), nil
}

// TaggedRelease 按选择器在发布列表中查找第一条匹配项，找不到返回 apperr.ErrNotFound。
func (c *Client) TaggedRelease(ctx context.Context, repo, selector string) (Release, error) {
	releases, err := c.Releases(ctx, repo)
	if err != nil {
		return Release{}, err
	}
	release, ok := SelectRelease(releases, selector)
	if !ok {
		return Release{}, fmt.Errorf("%w: release %q of %s", apperr.ErrNotFound, selector, repo)
	}
	return release, nil
}

// SelectRelease 按平台返回顺序扫描：latest 取第一条正式版，prerelease 取第一条预发布，
// recent 取第一条，其余按 tag 精确匹配。
func SelectRelease(releases []Release, selector string) (Release, bool) {
	for _, release := range releases {
		var match bool
		switch selector {
		case SelectorRecent:
			match = true
		case SelectorPrerelease:
			match = release.Prerelease
		case SelectorLatest:
			match = !release.Prerelease
		default:
			match = release.TagName == selector
		}
		if match {
			return release, true
		}
	}
	return Release{}, false
}

// LatestReleaseAssets 返回最新正式发布的附件记录。
func (c *Client) LatestReleaseAssets(ctx context.Context, repo string) ([]Asset, error) {
	release, err := c.LatestRelease(ctx, repo)
	if err != nil {
		return nil, err
	}
	return AssetsOf(repo, release), nil
}

// ReleaseAssets 返回选择器命中的发布附件记录；latest 直接走 latest 接口。
func (c *Client) ReleaseAssets(ctx context.Context, repo, selector string) ([]Asset, error) {
	if selector == "" || selector == SelectorLatest {
		return c.LatestReleaseAssets(ctx, repo)
	}
	release, err := c.TaggedRelease(ctx, repo, selector)
	if err != nil {
		return nil, err
	}
	return AssetsOf(repo, release), nil
}

// AssetsOf 将发布展开为附件记录；没有附件时以源码 tarball 代替。
func AssetsOf(repo string, release Release) []Asset {
	if len(release.Assets) == 0 {
		return []Asset{{
			Repository:         repo,
			Version:            release.TagName,
			Timestamp:          release.PublishedAt,
			Name:               fmt.Sprintf("%s-%s.tar.gz", repoName(repo), release.TagName),
			BrowserDownloadURL: release.TarballURL,
			ContentType:        "application/gzip",
		}}
	}
	assets := make([]Asset, 0, len(release.Assets))
	for _, a := range release.Assets {
		size := a.Size
		assets = append(assets, Asset{
			Repository:         repo,
			Version:            release.TagName,
			Timestamp:          a.UpdatedAt,
			Name:               a.Name,
			Size:               &size,
			BrowserDownloadURL: a.BrowserDownloadURL,
			ContentType:        a.ContentType,
		})
	}
	return assets
}

// Tools 并发获取所有工具仓库的发布附件，结果保持配置顺序；任一失败则整体失败。
func (c *Client) Tools(ctx context.Context, tools []config.ToolRepository) (ToolsPayload, error) {
	results := make([][]Asset, len(tools))
	g, gctx := errgroup.WithContext(ctx)
	for i, tool := range tools {
		g.Go(func() error {
			assets, err := c.ReleaseAssets(gctx, tool.Repository, tool.Tag)
			if err != nil {
				return fmt.Errorf("tools %s@%s: %w", tool.Repository, tool.Tag, err)
			}
			results[i] = assets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ToolsPayload{}, err
	}

	payload := ToolsPayload{Tools: []Asset{}}
	for _, assets := range results {
		payload.Tools = append(payload.Tools, assets...)
	}
	return payload, nil
}

func parseRelease(item gjson.Result) Release {
	release := Release{
		TagName:     item.Get("tag_name").String(),
		Prerelease:  item.Get("prerelease").Bool(),
		Body:        item.Get("body").String(),
		TarballURL:  item.Get("tarball_url").String(),
		PublishedAt: item.Get("published_at").String(),
	}
	for _, a := range item.Get("assets").Array() {
		release.Assets = append(release.Assets, ReleaseAsset{
			Name:               a.Get("name").String(),
			Size:               a.Get("size").Int(),
			UpdatedAt:          a.Get("updated_at").String(),
			BrowserDownloadURL: a.Get("browser_download_url").String(),
			ContentType:        a.Get("content_type").String(),
		})
	}
	return release
}

func repoName(repo string) string {
	if idx := strings.LastIndex(repo, "/"); idx >= 0 {
		return repo[idx+1:]
	}
	return repo
}

package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/any-hub/release-hub/internal/apperr"
)

// PatchManifest 下载选择器命中发布中名为 file 的附件，并原样返回其 JSON。
func (c *Client) PatchManifest(ctx context.Context, repo, selector, file string) (json.RawMessage, error) {
	var (
		release Release
		err     error
	)
	if selector == "" || selector == SelectorLatest {
		release, err = c.LatestRelease(ctx, repo)
	} else {
		release, err = c.TaggedRelease(ctx, repo, selector)
	}
	if err != nil {
		return nil, err
	}

	for _, asset := range release.Assets {
		if asset.Name != file {
			continue
		}
		body, err := c.get(ctx, asset.BrowserDownloadURL)
		if err != nil {
			return nil, err
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("%w: %s of %s@%s is not valid JSON", apperr.ErrUpstreamUnavailable, file, repo, release.TagName)
		}
		return json.RawMessage(body), nil
	}
	return nil, fmt.Errorf("%w: %s in %s@%s", apperr.ErrNotFound, file, repo, release.TagName)
}

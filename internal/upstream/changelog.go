package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/any-hub/release-hub/internal/apperr"
)

// ChangelogPayload 是 /changelogs 的响应体。
type ChangelogPayload struct {
	Repository     string   `json:"repository"`
	CurrentVersion string   `json:"current_version"`
	TargetTag      string   `json:"target_tag"`
	Commits        []string `json:"commits"`
}

// ToNumeric 只保留字符串中的十进制数字。
func ToNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CompareNumeric 比较两个版本字符串：提取数字，较短者右侧补零到等长后按整数比较，
// 返回 -1/0/1。这不是语义化版本比较，"v1.9" 会大于 "v1.10"（190 > 110）。
func CompareNumeric(a, b string) int {
	a, b = ToNumeric(a), ToNumeric(b)
	if diff := len(a) - len(b); diff > 0 {
		b += strings.Repeat("0", diff)
	} else if diff < 0 {
		a += strings.Repeat("0", -diff)
	}
	// 等长数字串的字典序即整数序，无需担心溢出。
	return strings.Compare(a, b)
}

// Changelog 汇总 current 与 target 之间各发布的说明。target 为选择器或字面 tag。
func (c *Client) Changelog(ctx context.Context, repo, current, target string) (ChangelogPayload, error) {
	if ToNumeric(current) == "" {
		return ChangelogPayload{}, fmt.Errorf("%w: current version %q has no digits", apperr.ErrBadRequest, current)
	}
	if target == "" {
		target = SelectorLatest
	}

	releases, err := c.Releases(ctx, repo)
	if err != nil {
		return ChangelogPayload{}, err
	}
	targetRelease, ok := SelectRelease(releases, target)
	if !ok {
		return ChangelogPayload{}, fmt.Errorf("%w: release %q of %s", apperr.ErrNotFound, target, repo)
	}

	return ChangelogPayload{
		Repository:     repo,
		CurrentVersion: current,
		TargetTag:      target,
		Commits:        CollectChangelog(releases, targetRelease, current),
	}, nil
}

// CollectChangelog 按平台顺序遍历发布：
//   - target 高于 current 时，收集 current < release <= target 且通道匹配的说明；
//   - current 高于 target 时，只收集与 target 等值的那条发布并停止；
//   - 二者相等时不收集任何内容。
func CollectChangelog(releases []Release, target Release, current string) []string {
	targetVersion := ToNumeric(target.TagName)
	commits := []string{}

	switch {
	case CompareNumeric(targetVersion, current) > 0:
		for _, release := range releases {
			if CompareNumeric(release.TagName, current) <= 0 {
				continue
			}
			if CompareNumeric(targetVersion, release.TagName) < 0 {
				continue
			}
			if target.Prerelease != release.Prerelease {
				continue
			}
			commits = append(commits, cleanupBody(release.Body)...)
		}
	case CompareNumeric(current, targetVersion) > 0:
		for _, release := range releases {
			if CompareNumeric(release.TagName, targetVersion) == 0 {
				commits = append(commits, cleanupBody(release.Body)...)
				break
			}
		}
	}
	return commits
}

// cleanupBody 按任意换行符拆分并去掉空行，末尾追加一个空行作为发布之间的分隔。
func cleanupBody(body string) []string {
	lines := strings.FieldsFunc(body, isLineBreak)
	return append(lines, "")
}

// isLineBreak 覆盖 \r、\n 以及 Unicode 行/段分隔符等换行字符。
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

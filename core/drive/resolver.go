package drive

import (
	"net/url"
	"regexp"
	"strings"
)

var pathStyleID = regexp.MustCompile(`/file/d/([^/?#]+)`)

var driveHosts = map[string]bool{
	"drive.google.com": true,
	"docs.google.com":  true,
}

// ResolveFileID extracts the file id from a Drive sharing link. Two shapes are
// accepted: path style (.../file/d/<id>/...) and query style (...?id=<id>).
// Anything else, including links on other hosts, reports false.
func ResolveFileID(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return "", false
	}
	if !driveHosts[strings.ToLower(u.Hostname())] {
		return "", false
	}

	// 使用未解码的原始值，返回链接中原样的 id
	if m := pathStyleID.FindStringSubmatch(u.EscapedPath()); m != nil {
		return m[1], true
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if id, ok := strings.CutPrefix(pair, "id="); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

package preview

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// CheckLinks parses rendered HTML and returns the relative link targets
// that do not exist on disk, resolved against baseDir. External links,
// fragments and absolute paths are ignored.
func CheckLinks(rendered []byte, baseDir string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return nil, err
	}

	var missing []string
	seen := make(map[string]struct{})

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if target, ok := checkableTarget(attr.Val); ok {
					if _, dup := seen[target]; !dup {
						seen[target] = struct{}{}
						if _, err := os.Stat(filepath.Join(baseDir, filepath.FromSlash(target))); err != nil {
							missing = append(missing, target)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return missing, nil
}

// checkableTarget reports whether href points at a local relative file we
// can verify, and returns the path portion with any fragment stripped.
func checkableTarget(href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "/") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	if u.Path == "" {
		return "", false
	}
	return u.Path, true
}

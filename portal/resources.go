package portal

import (
	"net/url"
	"strings"

	"tsquare/htmldoc"
)

// Markers of the script a folder link runs to navigate.
const (
	CollectionIDMarker = "getElementById('collectionId').value='"
	NavRootMarker      = "navRoot').value='"
)

// ParseResources reads a resources listing. Folders are links whose onclick
// handler posts a collectionId/navRoot pair; files are plain links. current
// is the collection ID of the listed folder, whose own link is skipped.
func ParseResources(page, base, current string) []*Resource {
	doc, err := htmldoc.Parse(page)
	if err != nil {
		return nil
	}
	postURL := base
	if form, ok := doc.First(`form[id*="showForm"], form[name*="showForm"]`); ok {
		if action := form.Attr("action"); action != "" {
			postURL = resolve(base, action)
		}
	}

	var out []*Resource
	seen := make(map[string]bool)
	for _, a := range doc.Find("td a, li a") {
		name := a.Text()
		if name == "" {
			continue
		}
		if onclick := a.Attr("onclick"); strings.Contains(onclick, CollectionIDMarker) {
			id, ok := htmldoc.Extract(onclick, CollectionIDMarker, htmldoc.DefaultLimit)
			if !ok || id == "" || id == current || seen["c:"+id] {
				continue
			}
			nav, _ := htmldoc.Extract(onclick, NavRootMarker, htmldoc.DefaultLimit)
			seen["c:"+id] = true
			out = append(out, &Resource{
				Name:         name,
				IsFolder:     true,
				CollectionID: id,
				NavRoot:      nav,
				PostURL:      postURL,
			})
			continue
		}
		href := strings.TrimSpace(a.Attr("href"))
		if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			continue
		}
		link := resolve(base, href)
		if seen["f:"+link] {
			continue
		}
		seen["f:"+link] = true
		out = append(out, &Resource{Name: name, Link: link, Loaded: true})
	}
	return out
}

// folderForm is the navigation post that lists a folder.
func folderForm(r *Resource) url.Values {
	return url.Values{
		"collectionId":   {r.CollectionID},
		"navRoot":        {r.NavRoot},
		"sakai_action":   {"doNavigate"},
		"criteria":       {"title"},
		"rt_action":      {""},
		"selectedItemId": {""},
	}
}

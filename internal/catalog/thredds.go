package catalog

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DatasetURLs holds the access URLs of every station dataset the server
// publishes, split by dataset class.
type DatasetURLs struct {
	Realtime []string
	Archive  []string
}

// Walker descends a THREDDS catalog tree and enumerates station datasets.
type Walker struct {
	domain string
	client *http.Client
	logger zerolog.Logger
}

// NewWalker creates a catalog walker for the given THREDDS domain
func NewWalker(domain string, logger zerolog.Logger) *Walker {
	return &Walker{
		domain: strings.TrimSuffix(domain, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With().Str("component", "thredds").Logger(),
	}
}

// threddsCatalog mirrors the subset of the THREDDS catalog XML schema the
// walker needs. CatalogRefs point at sub-catalogs, datasets carry the
// urlPath used to build access URLs.
type threddsCatalog struct {
	XMLName     xml.Name          `xml:"catalog"`
	CatalogRefs []threddsRef      `xml:"catalogRef"`
	Datasets    []threddsDataset  `xml:"dataset"`
}

type threddsRef struct {
	Href string `xml:"href,attr"`
}

type threddsDataset struct {
	URLPath     string            `xml:"urlPath,attr"`
	CatalogRefs []threddsRef      `xml:"catalogRef"`
	Datasets    []threddsDataset  `xml:"dataset"`
}

// Walk enumerates all realtime and archive station datasets. It loads the
// top-level catalog, follows the realtime and archive catalog references,
// and for the archive descends one further level into per-station catalogs.
func (w *Walker) Walk(ctx context.Context) (*DatasetURLs, error) {
	topURL := w.domain + "/thredds/catalog.xml"
	top, err := w.load(ctx, topURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load top-level catalog: %w", err)
	}

	result := &DatasetURLs{}

	for _, ref := range collectRefs(top) {
		catURL := w.domain + "/" + strings.TrimPrefix(ref, "/")
		cat, err := w.load(ctx, catURL)
		if err != nil {
			w.logger.Warn().Err(err).Str("url", catURL).Msg("Skipping unreadable sub-catalog")
			continue
		}

		switch {
		case strings.Contains(ref, "archive"):
			base := catURL[:strings.LastIndex(catURL, "/")]
			for _, stnRef := range collectRefs(cat) {
				stnCat, err := w.load(ctx, base+"/"+stnRef)
				if err != nil {
					w.logger.Warn().Err(err).Str("ref", stnRef).Msg("Skipping unreadable station catalog")
					continue
				}
				for _, up := range collectURLPaths(stnCat) {
					result.Archive = append(result.Archive, w.accessURL(up))
				}
			}
		case strings.Contains(ref, "realtime"):
			for _, up := range collectURLPaths(cat) {
				result.Realtime = append(result.Realtime, w.accessURL(up))
			}
		}
	}

	w.logger.Info().
		Int("realtime", len(result.Realtime)).
		Int("archive", len(result.Archive)).
		Msg("Walked catalog")

	return result, nil
}

// accessURL converts a catalog urlPath into a data access URL. The urlPath
// carries a server-internal leading element that is replaced by the dods
// service root.
func (w *Walker) accessURL(urlPath string) string {
	rest := urlPath
	if i := strings.Index(urlPath, "/"); i >= 0 {
		rest = urlPath[i+1:]
	}
	return fmt.Sprintf("%s/%s/cdip/%s", w.domain, dodsPath, rest)
}

// load fetches and decodes one catalog document
func (w *Walker) load(ctx context.Context, url string) (*threddsCatalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog body: %w", err)
	}

	var cat threddsCatalog
	if err := xml.Unmarshal(body, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog XML: %w", err)
	}

	return &cat, nil
}

// collectRefs gathers catalogRef hrefs from every nesting level
func collectRefs(cat *threddsCatalog) []string {
	var refs []string
	for _, r := range cat.CatalogRefs {
		refs = append(refs, r.Href)
	}
	var walk func(ds []threddsDataset)
	walk = func(ds []threddsDataset) {
		for _, d := range ds {
			for _, r := range d.CatalogRefs {
				refs = append(refs, r.Href)
			}
			walk(d.Datasets)
		}
	}
	walk(cat.Datasets)
	return refs
}

// collectURLPaths gathers dataset urlPath attributes from every nesting level
func collectURLPaths(cat *threddsCatalog) []string {
	var paths []string
	var walk func(ds []threddsDataset)
	walk = func(ds []threddsDataset) {
		for _, d := range ds {
			if d.URLPath != "" {
				paths = append(paths, d.URLPath)
			}
			walk(d.Datasets)
		}
	}
	walk(cat.Datasets)
	return paths
}

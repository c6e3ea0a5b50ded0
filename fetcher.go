package permitloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// Fetcher fetches an archive and extracts its tabular content.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*Batch, error)
}

var errNoEntries = errors.New("archive has no parsable entries")

// ArchiveFetcher downloads zip archives over HTTP(S) or from Cloud Storage
// (gs://bucket/object) and parses their entries.
type ArchiveFetcher struct {
	// HTTPClient is used for http and https endpoints. http.DefaultClient if nil.
	HTTPClient *http.Client

	// Parsers maps lower-cased entry extensions such as ".csv" to parsers.
	// Entries with other extensions are ignored.
	Parsers map[string]Parser

	// Encoding is the source encoding of CSV entries. UTF-8 if nil.
	Encoding encoding.Encoding

	// Concurrency is the number of entries parsed at once. 1 if less than 1.
	Concurrency int

	mu      sync.Mutex
	storage *storage.Client
}

// NewArchiveFetcher builds an ArchiveFetcher with the CSV, JSON and XLS parsers.
func NewArchiveFetcher() *ArchiveFetcher {
	return &ArchiveFetcher{
		Parsers: map[string]Parser{
			".csv":  CSVParser(),
			".json": JSONParser(),
			".xls":  XLSParser(),
		},
		Concurrency: 1,
	}
}

// Fetch implements Fetcher. Every failure is returned as a *FetchError.
func (f *ArchiveFetcher) Fetch(ctx context.Context, endpoint string) (*Batch, error) {
	body, err := f.download(ctx, endpoint)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}

	b, err := f.extract(ctx, body)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}

	log.Ctx(ctx).Debug().Str("endpoint", endpoint).Int("rows", b.Len()).
		Int("columns", len(b.Columns)).Msg("archive fetched")

	return b, nil
}

func (f *ArchiveFetcher) download(ctx context.Context, endpoint string) ([]byte, error) {
	if strings.HasPrefix(endpoint, "gs://") {
		return f.downloadObject(ctx, endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to build http request: %w", err)
	}

	c := f.HTTPClient
	if c == nil {
		c = http.DefaultClient
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, xerrors.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

func (f *ArchiveFetcher) downloadObject(ctx context.Context, endpoint string) ([]byte, error) {
	bucket, name, err := parseGCSURL(endpoint)
	if err != nil {
		return nil, err
	}

	s, err := f.storageClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := s.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to get reader of %s: %w", endpoint, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", endpoint, err)
	}

	return body, nil
}

func (f *ArchiveFetcher) storageClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.storage == nil {
		s, err := storage.NewClient(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to build storage client: %w", err)
		}
		f.storage = s
	}

	return f.storage, nil
}

func parseGCSURL(u string) (bucket, name string, err error) {
	rest := strings.TrimPrefix(u, "gs://")
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", xerrors.Errorf("invalid cloud storage url %q", u)
	}
	return rest[:i], rest[i+1:], nil
}

func (f *ArchiveFetcher) extract(ctx context.Context, body []byte) (*Batch, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, xerrors.Errorf("failed to open zip archive: %w", err)
	}

	var entries []*zip.File
	for _, e := range zr.File {
		if e.FileInfo().IsDir() {
			continue
		}
		if _, ok := f.Parsers[strings.ToLower(path.Ext(e.Name))]; ok {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, errNoEntries
	}

	limit := f.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]*Batch, len(entries))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, e := range entries {
		i, e := i, e
		eg.Go(func() error {
			b, err := f.parseEntry(ctx, e)
			if err != nil {
				return xerrors.Errorf("failed to parse %s: %w", e.Name, err)
			}
			results[i] = b
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := &Batch{}
	for _, b := range results {
		merged.appendBatch(b)
	}

	return merged, nil
}

func (f *ArchiveFetcher) parseEntry(ctx context.Context, e *zip.File) (*Batch, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, xerrors.Errorf("failed to open entry: %w", err)
	}
	defer rc.Close()

	ext := strings.ToLower(path.Ext(e.Name))

	var r io.Reader = rc
	if ext == ".csv" && f.Encoding != nil {
		r = transform.NewReader(r, f.Encoding.NewDecoder())
	}

	b, err := f.Parsers[ext](ctx, r)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, xerrors.New("parser returned no batch")
	}

	return b, nil
}

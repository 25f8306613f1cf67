package imagefetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/acme-retail/tablesync/internal/model"
	"github.com/acme-retail/tablesync/internal/objectstore"
	"github.com/acme-retail/tablesync/internal/retry"
	"github.com/acme-retail/tablesync/internal/upstream"
)

// defaultResolveBatchSize is the default upper bound on tokens per resolve
// request, per spec §4.2 step 1.
const defaultResolveBatchSize = 20

// resolver is the subset of upstream.Client the Fetcher depends on.
// Defined at the consumer so tests can substitute a stub.
type resolver interface {
	ResolveAttachments(ctx context.Context, tokens []string, revision int64) (map[string]upstream.ResolvedAttachment, error)
}

// Fetcher implements ImageFetcher (C2).
type Fetcher struct {
	resolver   resolver
	store      objectstore.Store
	existing   ExistingImageLookup
	httpClient *http.Client

	concurrency      int
	resolveBatchSize int
	retryAttempts    int

	upstreamBucket *retry.TokenBucket
	downloadBucket *retry.TokenBucket

	logger *slog.Logger
	now    func() time.Time
}

// Options configures a Fetcher. Zero values fall back to spec §6.5
// defaults.
type Options struct {
	Concurrency      int
	ResolveBatchSize int
	RetryAttempts    int
	UpstreamBucket   *retry.TokenBucket
	DownloadBucket   *retry.TokenBucket
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// NewFetcher builds a Fetcher. existing may be nil, in which case the
// skip-if-unchanged optimization (spec §4.2 step 4) is disabled.
func NewFetcher(res resolver, store objectstore.Store, existing ExistingImageLookup, opts Options) *Fetcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 5
	}

	if opts.ResolveBatchSize < 1 {
		opts.ResolveBatchSize = defaultResolveBatchSize
	}

	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.UpstreamBucket == nil {
		opts.UpstreamBucket = retry.NewTokenBucket(10)
	}

	if opts.DownloadBucket == nil {
		opts.DownloadBucket = retry.NewTokenBucket(10)
	}

	return &Fetcher{
		resolver:         res,
		store:            store,
		existing:         existing,
		httpClient:       opts.HTTPClient,
		concurrency:      opts.Concurrency,
		resolveBatchSize: opts.ResolveBatchSize,
		retryAttempts:    opts.RetryAttempts,
		upstreamBucket:   opts.UpstreamBucket,
		downloadBucket:   opts.DownloadBucket,
		logger:           opts.Logger,
		now:              time.Now,
	}
}

// Fetch resolves and downloads every request, per spec §4.2. The
// returned slice is always the same length as requests and in the same
// order; a Request with no recoverable result has a non-nil Result.Err
// and a nil Image.
func (f *Fetcher) Fetch(ctx context.Context, revision int64, requests []Request) ([]Result, error) {
	results := make([]Result, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	resolved, err := f.resolveAll(ctx, revision, requests)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("imagefetch: canceled during resolve: %w", err)
		}
		// A systemic resolve failure (e.g. upstream entirely down) fails
		// every request in this batch individually, rather than aborting
		// the whole sync — image failures never reject the owning record
		// (spec §4.2's failure semantics).
		for i, req := range requests {
			results[i] = Result{Request: req, Err: fmt.Errorf("imagefetch: resolve failed: %w", err)}
		}

		return results, nil
	}

	type job struct {
		index int
		req   Request
	}

	jobs := make(chan job)
	var wg sync.WaitGroup

	for range f.concurrency {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range jobs {
				results[j.index] = f.fetchOne(ctx, revision, j.req, resolved)
			}
		}()
	}

	for i, req := range requests {
		select {
		case jobs <- job{index: i, req: req}:
		case <-ctx.Done():
			results[i] = Result{Request: req, Err: ctx.Err()}
		}
	}

	close(jobs)
	wg.Wait()

	return results, nil
}

func (f *Fetcher) resolveAll(ctx context.Context, revision int64, requests []Request) (map[string]upstream.ResolvedAttachment, error) {
	seen := make(map[string]struct{}, len(requests))
	var tokens []string

	for _, r := range requests {
		if r.Token == "" {
			continue
		}

		if _, ok := seen[r.Token]; ok {
			continue
		}

		seen[r.Token] = struct{}{}
		tokens = append(tokens, r.Token)
	}

	merged := make(map[string]upstream.ResolvedAttachment, len(tokens))

	for start := 0; start < len(tokens); start += f.resolveBatchSize {
		end := min(start+f.resolveBatchSize, len(tokens))
		batch := tokens[start:end]

		resolved, err := f.resolveBatch(ctx, revision, batch)
		if err != nil {
			return nil, err
		}

		for k, v := range resolved {
			merged[k] = v
		}
	}

	return merged, nil
}

func (f *Fetcher) resolveBatch(ctx context.Context, revision int64, tokens []string) (map[string]upstream.ResolvedAttachment, error) {
	policy := retry.New(f.retryAttempts, upstream.Classify, f.logger)

	return retry.DoValue(ctx, policy, func(ctx context.Context) (map[string]upstream.ResolvedAttachment, error) {
		if err := f.upstreamBucket.Wait(ctx); err != nil {
			return nil, err
		}

		return f.resolver.ResolveAttachments(ctx, tokens, revision)
	})
}

// fetchOne resolves a single Request's image, downloading at most once
// more than necessary (the spec's single re-resolve-on-expiry budget),
// and is the unit of work each worker goroutine executes.
func (f *Fetcher) fetchOne(ctx context.Context, revision int64, req Request, resolved map[string]upstream.ResolvedAttachment) Result {
	att, ok := resolved[req.Token]
	if !ok {
		return Result{Request: req, Err: fmt.Errorf("imagefetch: token %s not resolved", req.Token)}
	}

	data, format, ext, err := f.downloadWithReResolve(ctx, revision, req, att)
	if err != nil {
		return Result{Request: req, Err: err}
	}

	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])

	if f.existing != nil {
		if prior, found, lookupErr := f.existing.GetImage(ctx, req.ProductID, req.Role); lookupErr == nil && found && prior.ContentHash == contentHash {
			return Result{Request: req, Image: prior}
		}
	}

	key := objectstore.BuildKey(req.ProductID, string(req.Role), f.now().UnixMilli(), ext)
	contentType := "image/" + format

	publicURL, err := f.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return Result{Request: req, Err: fmt.Errorf("imagefetch: uploading %s: %w", key, err)}
	}

	img := &model.Image{
		ImageID:     ulid.Make().String(),
		ProductID:   req.ProductID,
		Role:        req.Role,
		ObjectKey:   key,
		PublicURL:   publicURL,
		ContentHash: contentHash,
		ByteSize:    int64(len(data)),
		Format:      format,
		UploadedAt:  f.now(),
	}

	return Result{Request: req, Image: img}
}

// downloadWithReResolve downloads att.URL, re-resolving the token once if
// the response looks like an expired signed URL (spec §4.2 step 2), and
// applies the RetryPolicy otherwise.
func (f *Fetcher) downloadWithReResolve(ctx context.Context, revision int64, req Request, att upstream.ResolvedAttachment) ([]byte, string, string, error) {
	policy := retry.New(f.retryAttempts, classifyDownloadErr, f.logger)

	data, err := retry.DoValue(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return f.downloadOnce(ctx, att.URL)
	})

	if err != nil {
		var de *downloadError
		if errors.As(err, &de) && looksExpired(de.StatusCode, de.Body) {
			fresh, reErr := f.resolveBatch(ctx, revision, []string{req.Token})
			if reErr != nil {
				return nil, "", "", fmt.Errorf("imagefetch: re-resolving expired token: %w", reErr)
			}

			newAtt, ok := fresh[req.Token]
			if !ok {
				return nil, "", "", fmt.Errorf("imagefetch: re-resolve did not return token %s", req.Token)
			}

			data, err = retry.DoValue(ctx, policy, func(ctx context.Context) ([]byte, error) {
				return f.downloadOnce(ctx, newAtt.URL)
			})
		}

		if err != nil {
			return nil, "", "", fmt.Errorf("imagefetch: downloading token %s: %w", req.Token, err)
		}
	}

	format, ext, ok := sniffFormat(data)
	if !ok {
		return nil, "", "", ErrUnverifiedFormat
	}

	return data, format, ext, nil
}

func (f *Fetcher) downloadOnce(ctx context.Context, url string) ([]byte, error) {
	if err := f.downloadBucket.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imagefetch: building download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified as transport error by classifyDownloadErr
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("imagefetch: reading download body: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &downloadError{StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}


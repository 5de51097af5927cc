// Package provider fetches the daily image publication from the upstream
// wallpaper provider.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUpstreamUnavailable is returned when the provider cannot deliver the
// day's publication. It is not retried within a cycle.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// maxImageBytes caps a single downloaded source image
const maxImageBytes = 64 << 20

// Snapshot is one upstream publication cycle's media
type Snapshot struct {
	SourceImageURL  string    `json:"sourceImageUrl"`
	MobileImageURL  string    `json:"mobileImageUrl,omitempty"`
	Title           string    `json:"title"`
	AttributionLink string    `json:"attributionLink"`
	CaptionText     string    `json:"captionText"`
	PublishDate     time.Time `json:"publishDate"`
}

// ID identifies the snapshot by its publish date (YYYYMMDD)
func (s *Snapshot) ID() string {
	return s.PublishDate.Format("20060102")
}

// Fetcher retrieves snapshots and their source images
type Fetcher interface {
	// FetchSnapshot returns the current day's publication metadata
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
	// DownloadImage returns the raw bytes behind an image URL
	DownloadImage(ctx context.Context, imageURL string) ([]byte, error)
}

// bingArchive mirrors the relevant fields of HPImageArchive.aspx?format=js
type bingArchive struct {
	Images []struct {
		StartDate     string `json:"startdate"`
		URL           string `json:"url"`
		URLBase       string `json:"urlbase"`
		Copyright     string `json:"copyright"`
		CopyrightLink string `json:"copyrightlink"`
		Title         string `json:"title"`
	} `json:"images"`
}

// BingClient implements Fetcher against Bing's image archive endpoint
type BingClient struct {
	metadataURL string
	baseURL     string
	http        *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

// NewBingClient creates a new provider client
func NewBingClient(metadataURL, baseURL string, timeout time.Duration, logger *slog.Logger) *BingClient {
	return &BingClient{
		metadataURL: metadataURL,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
		now:         time.Now,
	}
}

// FetchSnapshot fetches and parses the provider's metadata endpoint
func (c *BingClient) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	body, err := c.get(ctx, c.metadataURL, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch metadata: %w", ErrUpstreamUnavailable, err)
	}

	var archive bingArchive
	if err := json.Unmarshal(body, &archive); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %w", ErrUpstreamUnavailable, err)
	}
	if len(archive.Images) == 0 || archive.Images[0].URL == "" {
		return nil, fmt.Errorf("%w: metadata lacks an image url", ErrUpstreamUnavailable)
	}

	img := archive.Images[0]

	published, err := time.Parse("20060102", img.StartDate)
	if err != nil {
		c.logger.Warn("provider returned no usable start date, using today", "startdate", img.StartDate)
		published = c.now().UTC().Truncate(24 * time.Hour)
	}

	snap := &Snapshot{
		SourceImageURL:  c.resolve(img.URL),
		Title:           img.Title,
		CaptionText:     img.Copyright,
		AttributionLink: attribution(img.CopyrightLink),
		PublishDate:     published,
	}
	if img.URLBase != "" {
		snap.MobileImageURL = c.resolve(img.URLBase + "_1080x1920.jpg")
	}

	c.logger.Debug("fetched snapshot",
		"id", snap.ID(),
		"title", snap.Title,
		"image", snap.SourceImageURL)

	return snap, nil
}

// DownloadImage downloads a source image
func (c *BingClient) DownloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	body, err := c.get(ctx, imageURL, maxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: download image: %w", ErrUpstreamUnavailable, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image body from %s", ErrUpstreamUnavailable, imageURL)
	}
	return body, nil
}

func (c *BingClient) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s returned HTTP %d", target, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// resolve turns a provider-relative path into an absolute URL
func (c *BingClient) resolve(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

// attribution normalizes placeholder links to an empty attribution
func attribution(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(strings.ToLower(link), "javascript:") {
		return ""
	}
	return link
}

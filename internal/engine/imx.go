package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"picdrop/internal/uploader"
)

const userAgent = "picdrop/0.1.0"

// DefaultIMXBaseURL is the production endpoint for the imx host.
const DefaultIMXBaseURL = "https://imx.to"

// imxMaxFileBytes is the per-image cap the service enforces server-side;
// enforcing it client-side skips doomed transfers.
const imxMaxFileBytes = 10 * 1024 * 1024

// IMXHost is the wire client for the imx image host.
type IMXHost struct {
	baseURL string
	client  *http.Client
}

// NewIMXHost builds an imx client. An empty baseURL selects the production
// endpoint; a nil client gets a 60 second timeout suitable for image-sized
// uploads.
func NewIMXHost(baseURL string, client *http.Client) *IMXHost {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultIMXBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &IMXHost{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

var _ ImageHost = (*IMXHost)(nil)

// Name identifies the host in logs, queue rows, and coordinator slots.
func (h *IMXHost) Name() string { return "imx" }

// MaxFileBytes returns the service's per-image size cap.
func (h *IMXHost) MaxFileBytes() int64 { return imxMaxFileBytes }

// CreateGallery registers a new gallery and returns its identifier and
// public URL.
func (h *IMXHost) CreateGallery(ctx context.Context, name string, public bool) (string, string, error) {
	form := url.Values{}
	form.Set("name", name)
	form.Set("public", strconv.FormatBool(public))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/api/galleries", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("build create gallery request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("create gallery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("create gallery: %s", readAPIError(resp))
	}

	var decoded struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", "", fmt.Errorf("decode create gallery response: %w", err)
	}
	if decoded.ID == "" {
		return "", "", fmt.Errorf("create gallery: service returned no gallery id")
	}
	return decoded.ID, decoded.URL, nil
}

// RenameGallery sets the display name of an existing gallery. The service
// rejects renames while a gallery still has in-flight processing, so callers
// retry failures later.
func (h *IMXHost) RenameGallery(ctx context.Context, galleryID, name string) error {
	form := url.Values{}
	form.Set("name", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/api/galleries/"+url.PathEscape(galleryID)+"/rename",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build rename gallery request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("rename gallery %s: %w", galleryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rename gallery %s: %s", galleryID, readAPIError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// UploadImage streams one file into an existing gallery via multipart POST.
func (h *IMXHost) UploadImage(ctx context.Context, galleryID string, file File, settings uploader.Settings) (*uploader.UploadedImage, error) {
	src, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(form, galleryID, file.Name, src, settings)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/api/galleries/"+url.PathEscape(galleryID)+"/images", pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload %s: %s", file.Name, readAPIError(resp))
	}

	var decoded struct {
		Name     string `json:"name"`
		Size     int64  `json:"size"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		URL      string `json:"url"`
		ThumbURL string `json:"thumb_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode upload response for %s: %w", file.Name, err)
	}

	img := &uploader.UploadedImage{
		Name:     decoded.Name,
		Size:     decoded.Size,
		Width:    decoded.Width,
		Height:   decoded.Height,
		URL:      decoded.URL,
		ThumbURL: decoded.ThumbURL,
	}
	if img.Name == "" {
		img.Name = file.Name
	}
	if img.Size == 0 {
		img.Size = file.Size
	}
	return img, nil
}

func writeUploadForm(form *multipart.Writer, galleryID, name string, src io.Reader, settings uploader.Settings) error {
	if err := form.WriteField("gallery_id", galleryID); err != nil {
		return err
	}
	if err := form.WriteField("thumbnail_size", strconv.Itoa(settings.ThumbnailSize)); err != nil {
		return err
	}
	if err := form.WriteField("thumbnail_format", strconv.Itoa(settings.ThumbnailFormat)); err != nil {
		return err
	}
	part, err := form.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

func readAPIError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	text := strings.TrimSpace(string(body))
	if text == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, text)
}

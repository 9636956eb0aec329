package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/publish"
	"github.com/samvad-hq/channel-relay/pkg/httpclient"
)

// DefaultMediaMaxBytes is the Bot API download ceiling.
const DefaultMediaMaxBytes int64 = 20 * 1024 * 1024

// fileResolver is the subset of *telego.Bot used to locate file contents.
type fileResolver interface {
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Downloader retrieves media by file id into memory.
type Downloader struct {
	files    fileResolver
	http     httpclient.Client
	maxBytes int64
}

// NewDownloader builds a Downloader capped at maxBytes per item.
func NewDownloader(files fileResolver, client httpclient.Client, maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = DefaultMediaMaxBytes
	}
	return &Downloader{files: files, http: client, maxBytes: maxBytes}
}

var _ publish.Downloader = (*Downloader)(nil)

// Download resolves ref to a file path and fetches its bytes.
func (d *Downloader) Download(ctx context.Context, ref domain.MediaRef) ([]byte, error) {
	if ref.FileID == "" {
		return nil, fmt.Errorf("media reference has no file id")
	}
	if ref.Size > d.maxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", ref.Size, d.maxBytes)
	}

	file, err := d.files.GetFile(ctx, &telego.GetFileParams{FileID: ref.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", ref.FileID)
	}
	if file.FileSize > d.maxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, d.maxBytes)
	}

	url := d.files.FileDownloadURL(file.FilePath)
	return httpclient.FetchBytes(ctx, d.http, url, d.maxBytes, "file/"+file.FilePath)
}

package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
)

// Downloader stores media payloads under the session media dir and
// implements MediaDownloader.
type Downloader struct {
	client *whatsmeow.Client
	dir    string
	logger *zap.Logger
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(client *whatsmeow.Client, dir string, logger *zap.Logger) *Downloader {
	return &Downloader{client: client, dir: dir, logger: logger}
}

// Download fetches the media payload of msg, writes it to disk, and returns
// the stored path and mime type.
func (d *Downloader) Download(ctx context.Context, msgID string, msg *waE2E.Message) (string, string, error) {
	data, err := d.client.DownloadAny(ctx, msg)
	if err != nil {
		return "", "", fmt.Errorf("download media: %w", err)
	}

	mime := mediaMimeType(msg)
	path := filepath.Join(d.dir, msgID+extensionFor(mime))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", "", fmt.Errorf("write media: %w", err)
	}
	d.logger.Debug("media stored",
		zap.String("msg_id", msgID),
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return path, mime, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg; codecs=opus":
		return ".ogg"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

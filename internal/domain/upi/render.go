package upi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QRRenderer renders content as a PNG QR code.
type QRRenderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewQRRenderer creates a QRRenderer. level is one of "low", "medium",
// "high" or "highest"; anything else means medium.
func NewQRRenderer(size int, level string) *QRRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{Size: size, Level: ParseLevel(level)}
}

// ParseLevel maps a configured recovery level name to a qrcode level.
func ParseLevel(level string) qrcode.RecoveryLevel {
	switch strings.ToLower(level) {
	case "low":
		return qrcode.Low
	case "high":
		return qrcode.High
	case "highest":
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

func (r *QRRenderer) Render(_ context.Context, content string) ([]byte, error) {
	png, err := qrcode.Encode(content, r.Level, r.Size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr")
	}
	return png, nil
}

// ImageCache stores rendered images by key.
type ImageCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// CachedRenderer serves renders from an ImageCache, collapsing concurrent
// renders of the same content into one.
type CachedRenderer struct {
	next  Renderer
	cache ImageCache
	sfg   singleflight.Group
}

// NewCachedRenderer wraps next with cache.
func NewCachedRenderer(next Renderer, cache ImageCache) *CachedRenderer {
	return &CachedRenderer{next: next, cache: cache}
}

func (c *CachedRenderer) Render(ctx context.Context, content string) ([]byte, error) {
	key := cacheKey(content)
	// The shared render runs detached from whichever caller started it; each
	// caller still stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(key, func() (any, error) {
		lg := zctx.From(shared)
		img, err := c.cache.Get(shared, key)
		if err == nil && len(img) > 0 {
			return img, nil
		}
		if err != nil {
			lg.Debug("QR cache miss", zap.String("key", key), zap.Error(err))
		}

		img, err = c.next.Render(shared, content)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(shared, key, img); err != nil {
			lg.Warn("QR cache set failed", zap.String("key", key), zap.Error(err))
		}
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func cacheKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "qr:" + hex.EncodeToString(sum[:])
}

package sync

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/readersync/internal/reader"
)

// IconLoader turns an icon uri into PNG bytes, or nil if that isn't possible.
type IconLoader interface {
	Load(ctx context.Context, uri string) []byte
}

// Icons fetches icons through the remote client and normalizes them to PNG.
// Many subscriptions share a favicon, so results are kept in a small cache.
type Icons struct {
	client reader.Client
	cache  *lru.Cache[string, []byte]
}

const maxIconBytes = 1 << 20

func NewIcons(client reader.Client) *Icons {
	cache, _ := lru.New[string, []byte](256)
	return &Icons{client: client, cache: cache}
}

func (i *Icons) Load(ctx context.Context, uri string) []byte {
	if uri == "" {
		return nil
	}
	if icon, ok := i.cache.Get(uri); ok {
		return icon
	}

	icon, err := i.fetch(ctx, uri)
	if err != nil {
		slog.DebugContext(ctx, "skipping icon", "uri", uri, "error", err)
		return nil
	}

	i.cache.Add(uri, icon)
	return icon
}

func (i *Icons) fetch(ctx context.Context, uri string) ([]byte, error) {
	body, err := i.client.FetchBytes(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	img, _, err := image.Decode(io.LimitReader(body, maxIconBytes))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a whole HTTP retrieval, so a stalled server cannot hold a queue slot forever.
const DefaultTimeout = 30 * time.Second

// URLFunc returns the address of a tile image.
type URLFunc func(req Request) string

// PathURL addresses tiles as <base>/<matrix id>/<row>/<column>.<suffix>.
func PathURL(base, suffix string) URLFunc {
	base = strings.TrimSuffix(base, "/")
	return func(req Request) string {
		return base + "/" + req.MatrixID + "/" + strconv.Itoa(req.Row) + "/" + strconv.Itoa(req.Column) + "." + suffix
	}
}

// HTTP retrieves tile images with GET requests.
type HTTP struct {
	Client *http.Client
	URL    URLFunc
}

// NewHTTP returns a retriever using client, or a client with DefaultTimeout when nil.
func NewHTTP(url URLFunc, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTP{Client: client, URL: url}
}

func (h *HTTP) Retrieve(ctx context.Context, req Request) ([]byte, error) {
	url := h.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

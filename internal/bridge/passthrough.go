package bridge

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// passthroughClient forwards unrecognized JSON-RPC requests to the upstream
// node. It is the one outbound HTTP dependency the Bridge owns, built on
// resty for consistent timeout/retry configuration across the single
// passthrough call site.
type passthroughClient struct {
	http *resty.Client
	url  string
}

func newPassthroughClient(url string) *passthroughClient {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &passthroughClient{http: client, url: url}
}

// Forward POSTs body to the upstream RPC endpoint unchanged and returns its
// status code and response body unchanged.
func (c *passthroughClient) Forward(ctx context.Context, body []byte) (int, []byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.url)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

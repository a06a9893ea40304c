package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"kpisync/internal/observability"
	apperrors "kpisync/pkg/errors"
)

// DefaultTimeout bounds a single download attempt.
const DefaultTimeout = 60 * time.Second

// Downloader fetches archives over HTTP, retrying transient failures.
type Downloader struct {
	client *resty.Client
	retry  *apperrors.RetryConfig
	logger *observability.Logger
}

// NewDownloader creates a downloader. A nil retry config uses the default
// exponential backoff.
func NewDownloader(timeout time.Duration, retry *apperrors.RetryConfig, logger *observability.Logger) *Downloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retry == nil {
		retry = apperrors.DefaultRetryConfig()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	cfg := *retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WithError(err).WarnWithFields("download failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		})
	}

	return &Downloader{
		client: resty.New().SetTimeout(timeout).SetHeader("User-Agent", "kpisync"),
		retry:  &cfg,
		logger: logger,
	}
}

// Download returns the response body of url.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := apperrors.Retry(ctx, d.retry, func(ctx context.Context) error {
		resp, err := d.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNetworkUnavailable, "download request failed").
				WithContext("url", url).
				AsRecoverable()
		}

		if resp.IsError() {
			appErr := apperrors.New(apperrors.ErrCodeDownloadFailed, fmt.Sprintf("download returned %s", resp.Status())).
				WithContext("url", url).
				WithContext("status", resp.StatusCode())
			if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
				_ = appErr.AsRecoverable()
			}
			return appErr
		}

		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.InfoWithFields("downloaded archive", map[string]interface{}{"url": url, "bytes": len(body)})
	return body, nil
}

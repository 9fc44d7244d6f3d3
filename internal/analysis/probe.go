package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const probeTimeout = 15 * time.Second

// Probe fetches the configured model's metadata to confirm the endpoint is
// reachable and the credential is accepted. It sends no frames.
func (a *Adapter) Probe(ctx context.Context) error {
	if a.cfg.APIKey == "" {
		return missingCredential()
	}
	endpoint, err := a.endpoint("")
	if err != nil {
		return fmt.Errorf("analysis: build endpoint: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("analysis: build request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("analysis: probe: %w", ctxErr)
		}
		return transportFailure(0, redactURLError(err), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return err
	}
	return nil
}

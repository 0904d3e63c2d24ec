package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillforge/skillforge-lms/internal/domain/certificate"
	"github.com/skillforge/skillforge-lms/pkg/circuitbreaker"
)

// HTTPRenderer implements ArtifactRenderer against an external rendering
// service: POST the certificate payload, receive the stored artifact URL.
// A breaker keeps a dead renderer from stalling the issuance path; failed
// renders are picked up later by the backfill job.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPRenderer creates a renderer client for the given base URL.
func NewHTTPRenderer(baseURL string, onStateChange func(name string, from, to circuitbreaker.State)) *HTTPRenderer {
	return &HTTPRenderer{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: circuitbreaker.RendererBreaker(onStateChange),
	}
}

// WithTimeout overrides the default request timeout. Returns the receiver for
// chaining during construction.
func (r *HTTPRenderer) WithTimeout(d time.Duration) *HTTPRenderer {
	if d > 0 {
		r.client.Timeout = d
	}
	return r
}

type renderRequest struct {
	Number           string            `json:"number"`
	StudentID        string            `json:"student_id"`
	CourseID         string            `json:"course_id"`
	VerificationCode string            `json:"verification_code"`
	IssuedAt         time.Time         `json:"issued_at"`
	Stats            certificate.Stats `json:"stats"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render submits the certificate for rendering and returns the artifact URL.
func (r *HTTPRenderer) Render(ctx context.Context, cert *certificate.Certificate) (string, error) {
	var url string

	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		payload, err := json.Marshal(renderRequest{
			Number:           cert.Number,
			StudentID:        cert.StudentID,
			CourseID:         cert.CourseID,
			VerificationCode: cert.VerificationCode,
			IssuedAt:         cert.IssuedAt,
			Stats:            cert.Stats,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal render request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build render request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("render request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("renderer returned %d: %s", resp.StatusCode, body)
		}

		var out renderResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("failed to decode render response: %w", err)
		}

		url = out.URL
		return nil
	})
	if err != nil {
		return "", err
	}

	return url, nil
}

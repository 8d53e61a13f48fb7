// Package pdf is the client for the signed-PDF render service.
package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/audit"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
)

// Renderer produces the signed PDF of a document. It returns the stored
// artifact reference, or "" when the service stores it itself.
type Renderer interface {
	GenerateSignedPDF(ctx context.Context, documentID string, actx audit.Context) (string, error)
}

// HTTPRenderer calls the render service over HTTP
type HTTPRenderer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRenderer creates a render client
func NewHTTPRenderer(baseURL, apiKey string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type renderRequest struct {
	CompanyID     string `json:"company_id"`
	CompanyDBName string `json:"company_db_name"`
	ActorType     string `json:"actor_type"`
	ActorID       string `json:"actor_id"`
}

type renderResponse struct {
	PDFURL string `json:"pdf_url"`
}

// GenerateSignedPDF implements Renderer
func (r *HTTPRenderer) GenerateSignedPDF(ctx context.Context, documentID string, actx audit.Context) (string, error) {
	payload := renderRequest{
		CompanyID: actx.CompanyID(),
		ActorType: actx.Actor.Type,
		ActorID:   actx.Actor.ID,
	}
	if actx.Models != nil {
		payload.CompanyDBName = actx.Models.DBName()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/documents/%s/signed-pdf", r.baseURL, url.PathEscape(documentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "esign-delivery-service/1.0")
	if r.apiKey != "" {
		httpReq.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", apperrors.NewDeliveryError("pdf render request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.NewDeliveryError(fmt.Sprintf("pdf render service returned %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", apperrors.NewValidationError(
			fmt.Sprintf("pdf render service rejected document %s: %d %s", documentID, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	var out renderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode render response: %w", err)
	}
	return out.PDFURL, nil
}

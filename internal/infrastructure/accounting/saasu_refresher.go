package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// SaasuRefresher exchanges Saasu refresh tokens for new access tokens
type SaasuRefresher struct {
	config     *SaasuConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewSaasuRefresher creates a refresher sharing the gateway's configuration
func NewSaasuRefresher(config *SaasuConfig) (*SaasuRefresher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SaasuRefresher{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}, nil
}

// System returns the system this refresher serves
func (r *SaasuRefresher) System() integration.System {
	return integration.SystemAccounting
}

// Refresh runs the refresh_token grant. The returned file id comes from the "fileid:N" scope.
func (r *SaasuRefresher) Refresh(ctx context.Context, cred integration.Credential) (integration.RefreshedCredential, error) {
	if cred.RefreshToken == "" {
		return integration.RefreshedCredential{}, &integration.TenantNotConnectedError{System: integration.SystemAccounting}
	}

	payload, err := json.Marshal(saasuTokenRequest{GrantType: "refresh_token", RefreshToken: cred.RefreshToken})
	if err != nil {
		return integration.RefreshedCredential{}, fmt.Errorf("saasu: failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.APIBaseURL+"/authorisation/refresh", bytes.NewReader(payload))
	if err != nil {
		return integration.RefreshedCredential{}, fmt.Errorf("saasu: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{System: integration.SystemAccounting, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{System: integration.SystemAccounting, Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{
			System: integration.SystemAccounting,
			Err:    &integration.RemoteError{System: integration.SystemAccounting, Status: resp.StatusCode, Message: string(body)},
		}
	}
	if resp.StatusCode >= 400 {
		return integration.RefreshedCredential{}, &integration.TenantNotConnectedError{
			System: integration.SystemAccounting,
			Err:    &integration.RemoteError{System: integration.SystemAccounting, Status: resp.StatusCode, Message: string(body)},
		}
	}

	var token saasuTokenResponse
	if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
		return integration.RefreshedCredential{}, fmt.Errorf("%w: token response", integration.ErrRemoteInvalidResponse)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	return integration.RefreshedCredential{
		Credential: integration.Credential{
			AccessToken:  token.AccessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    r.now().Add(time.Duration(token.ExpiresIn) * time.Second),
			Connected:    true,
		},
		AccountingFileID: fileIDFromScope(token.Scope),
	}, nil
}

// Ensure SaasuRefresher implements CredentialRefresher
var _ integration.CredentialRefresher = (*SaasuRefresher)(nil)

package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// HubSpotRefresher exchanges HubSpot refresh tokens for new access tokens
type HubSpotRefresher struct {
	config     *HubSpotConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewHubSpotRefresher creates a refresher sharing the gateway's configuration
func NewHubSpotRefresher(config *HubSpotConfig) (*HubSpotRefresher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HubSpotRefresher{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}, nil
}

// System returns the system this refresher serves
func (r *HubSpotRefresher) System() integration.System {
	return integration.SystemCRM
}

// Refresh runs the refresh_token grant
func (r *HubSpotRefresher) Refresh(ctx context.Context, cred integration.Credential) (integration.RefreshedCredential, error) {
	if cred.RefreshToken == "" {
		return integration.RefreshedCredential{}, &integration.TenantNotConnectedError{System: integration.SystemCRM}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {r.config.ClientID},
		"client_secret": {r.config.ClientSecret},
		"refresh_token": {cred.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.APIBaseURL+"/oauth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return integration.RefreshedCredential{}, fmt.Errorf("hubspot: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{System: integration.SystemCRM, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{System: integration.SystemCRM, Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return integration.RefreshedCredential{}, &integration.TransientRemoteError{
			System: integration.SystemCRM,
			Err:    &integration.RemoteError{System: integration.SystemCRM, Status: resp.StatusCode, Message: string(body)},
		}
	}
	if resp.StatusCode >= 400 {
		var tokenErr hubSpotTokenError
		_ = json.Unmarshal(body, &tokenErr)
		return integration.RefreshedCredential{}, &integration.TenantNotConnectedError{
			System: integration.SystemCRM,
			Err:    &integration.RemoteError{System: integration.SystemCRM, Status: resp.StatusCode, Message: tokenErr.Message},
		}
	}

	var token hubSpotTokenResponse
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
	}, nil
}

// Ensure HubSpotRefresher implements CredentialRefresher
var _ integration.CredentialRefresher = (*HubSpotRefresher)(nil)

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"vanu-marketplace/internal/common/errors"
)

// KeycloakClient talks to the Keycloak admin REST API with a service-account
// token and to the OpenID endpoints for user sign-in.
type KeycloakClient struct {
	baseURL        string
	realm          string
	clientID       string
	clientSecret   string
	publicClientID string
	httpClient     *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// User represents a user in Keycloak.
type User struct {
	ID            string       `json:"id,omitempty"`
	Email         string       `json:"email"`
	FirstName     string       `json:"firstName"`
	LastName      string       `json:"lastName"`
	Username      string       `json:"username"`
	Enabled       bool         `json:"enabled"`
	EmailVerified bool         `json:"emailVerified"`
	Credentials   []Credential `json:"credentials,omitempty"`
}

type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool   `json:"active"`
	Scope       string `json:"scope,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Exp         int64  `json:"exp,omitempty"`
	Iat         int64  `json:"iat,omitempty"`
	Sub         string `json:"sub,omitempty"` // user id
	Iss         string `json:"iss,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// HasRole reports whether the token carries the realm role.
func (t *TokenInfo) HasRole(role string) bool {
	for _, r := range t.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ExpiresAt returns the token expiry, or the zero time when unknown.
func (t *TokenInfo) ExpiresAt() time.Time {
	if t.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(t.Exp, 0)
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret, publicClientID string) *KeycloakClient {
	if publicClientID == "" {
		publicClientID = clientID
	}
	return &KeycloakClient{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		realm:          realm,
		clientID:       clientID,
		clientSecret:   clientSecret,
		publicClientID: publicClientID,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (k *KeycloakClient) tokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)
}

func (k *KeycloakClient) usersURL() string {
	return fmt.Sprintf("%s/admin/realms/%s/users", k.baseURL, k.realm)
}

// requestServiceToken runs the client credentials grant.
func (k *KeycloakClient) requestServiceToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	tok, status, body, err := k.postToken(ctx, data)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeKeycloakAuth,
			"Failed to authenticate with Keycloak", err.Error(), true)
	}
	if status != http.StatusOK {
		return nil, errors.NewError(errors.ErrCodeKeycloakAuth,
			"Failed to authenticate with Keycloak",
			fmt.Sprintf("status %d: %s", status, body), isTransientHTTPError(status))
	}
	return tok, nil
}

func (k *KeycloakClient) postToken(ctx context.Context, data url.Values) (*TokenResponse, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenURL(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, string(body), nil
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return &tokenResp, resp.StatusCode, "", nil
}

// sharedToken returns the cached service-account token, refreshing it a
// little before expiry.
func (k *KeycloakClient) sharedToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.accessToken != "" && time.Now().Add(10*time.Second).Before(k.tokenExpiry) {
		return k.accessToken, nil
	}

	tok, err := k.requestServiceToken(ctx)
	if err != nil {
		return "", err
	}
	k.accessToken = tok.AccessToken
	k.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return k.accessToken, nil
}

// ==========================
// Admin sessions
// ==========================

// AdminSession performs admin API calls with one bearer token. Sessions from
// NewIsolatedSession own a token nobody else uses and revoke it on Release.
type AdminSession struct {
	k     *KeycloakClient
	token string
	owned bool

	once sync.Once
}

// NewIsolatedSession acquires a dedicated service-account token.
func (k *KeycloakClient) NewIsolatedSession(ctx context.Context) (*AdminSession, error) {
	tok, err := k.requestServiceToken(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminSession{k: k, token: tok.AccessToken, owned: true}, nil
}

// SharedSession uses the client's cached token; Release is a no-op.
func (k *KeycloakClient) SharedSession(ctx context.Context) (*AdminSession, error) {
	tok, err := k.sharedToken(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminSession{k: k, token: tok}, nil
}

// Release revokes an owned token. Only the first call has an effect.
func (s *AdminSession) Release(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		if s.owned {
			err = s.k.RevokeToken(ctx, s.token, "access_token")
		}
	})
	return err
}

func (s *AdminSession) do(ctx context.Context, method, target string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.NewError("SERIALIZATION_ERROR", "Failed to serialize request", err.Error(), false)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewError("HTTP_REQUEST_ERROR", "Failed to create HTTP request", err.Error(), false)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetwork, "Failed to send request to Keycloak", err.Error(), true)
	}
	return resp, nil
}

func apiError(op string, resp *http.Response) *errors.StandardError {
	body, _ := io.ReadAll(resp.Body)
	return errors.NewError(errors.ErrCodeKeycloakAPI,
		fmt.Sprintf("Keycloak API error during %s", op),
		fmt.Sprintf("status %d: %s", resp.StatusCode, string(body)),
		isTransientHTTPError(resp.StatusCode))
}

// CreateUser registers user with a permanent password. Keycloak answers 409
// when the username or email is taken; that maps to DUPLICATE_IDENTITY.
func (s *AdminSession) CreateUser(ctx context.Context, user *User, password string) (*User, error) {
	if user.Username == "" {
		user.Username = user.Email
	}
	if password != "" {
		user.Credentials = []Credential{{Type: "password", Value: password, Temporary: false}}
	}

	resp, err := s.do(ctx, http.MethodPost, s.k.usersURL(), user)
	user.Credentials = nil
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, errors.NewDuplicateIdentityError(user.Email)
	default:
		return nil, apiError("user creation", resp)
	}

	// 201 carries the new id only in the Location header
	if location := resp.Header.Get("Location"); location != "" {
		parts := strings.Split(location, "/")
		user.ID = parts[len(parts)-1]
	}
	if user.ID == "" {
		return nil, errors.NewError(errors.ErrCodeKeycloakAPI,
			"Keycloak API error during user creation", "missing Location header", false)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by exact email match.
func (s *AdminSession) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	searchURL := fmt.Sprintf("%s?email=%s&exact=true", s.k.usersURL(), url.QueryEscape(email))

	resp, err := s.do(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("user search", resp)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, errors.NewError("DESERIALIZATION_ERROR", "Failed to decode user search results", err.Error(), false)
	}
	if len(users) == 0 {
		return nil, errors.NewError(errors.ErrCodeUserNotFound, "User not found",
			fmt.Sprintf("No user found with email: %s", email), false)
	}
	return &users[0], nil
}

func (s *AdminSession) GetUser(ctx context.Context, userID string) (*User, error) {
	resp, err := s.do(ctx, http.MethodGet, s.k.usersURL()+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewError(errors.ErrCodeUserNotFound, "User not found",
			fmt.Sprintf("userId: %s", userID), false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("user retrieval", resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, errors.NewError("DESERIALIZATION_ERROR", "Failed to decode user details", err.Error(), false)
	}
	return &user, nil
}

// UpdateUser writes the representation fields set in user. Keycloak treats
// the PUT body as a partial update.
func (s *AdminSession) UpdateUser(ctx context.Context, user *User) error {
	resp, err := s.do(ctx, http.MethodPut, s.k.usersURL()+"/"+url.PathEscape(user.ID), user)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errors.NewError(errors.ErrCodeUserNotFound, "User not found",
			fmt.Sprintf("userId: %s", user.ID), false)
	default:
		return apiError("user update", resp)
	}
}

// DeleteUser removes a user. A missing user is not an error.
func (s *AdminSession) DeleteUser(ctx context.Context, userID string) error {
	resp, err := s.do(ctx, http.MethodDelete, s.k.usersURL()+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return apiError("user deletion", resp)
	}
	return nil
}

// ==========================
// End-user flows
// ==========================

// SignIn runs the resource-owner password grant against the public client.
func (k *KeycloakClient) SignIn(ctx context.Context, email, password string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", k.publicClientID)
	if k.publicClientID == k.clientID {
		data.Set("client_secret", k.clientSecret)
	}
	data.Set("username", email)
	data.Set("password", password)
	data.Set("scope", "openid")

	tok, status, body, err := k.postToken(ctx, data)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetwork, "Failed to reach Keycloak", err.Error(), true)
	}
	switch {
	case status == http.StatusOK:
		return tok, nil
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return nil, errors.NewInvalidCredentialsError(fmt.Errorf("status %d: %s", status, body))
	default:
		return nil, errors.NewError(errors.ErrCodeKeycloakAuth, "Sign-in failed",
			fmt.Sprintf("status %d: %s", status, body), isTransientHTTPError(status))
	}
}

// Logout ends the session behind refreshToken.
func (k *KeycloakClient) Logout(ctx context.Context, refreshToken string) error {
	logoutURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/logout", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("client_id", k.publicClientID)
	if k.publicClientID == k.clientID {
		data.Set("client_secret", k.clientSecret)
	}
	data.Set("refresh_token", refreshToken)

	status, body, err := k.postForm(ctx, logoutURL, data)
	if err != nil {
		return errors.NewError(errors.ErrCodeNetwork, "Failed to execute logout request", err.Error(), true)
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return errors.NewError(errors.ErrCodeKeycloakLogoutFailed, "Keycloak logout failed",
			fmt.Sprintf("Status: %d, Body: %s", status, body), isTransientHTTPError(status))
	}
	return nil
}

// RevokeToken invalidates a token issued to the confidential client.
func (k *KeycloakClient) RevokeToken(ctx context.Context, token, hint string) error {
	revokeURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/revoke", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", hint)
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	status, body, err := k.postForm(ctx, revokeURL, data)
	if err != nil {
		return errors.NewError(errors.ErrCodeNetwork, "Failed to execute revoke request", err.Error(), true)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return errors.NewError(errors.ErrCodeKeycloakAPI, "Keycloak token revocation failed",
			fmt.Sprintf("Status: %d, Body: %s", status, body), isTransientHTTPError(status))
	}
	return nil
}

// ValidateToken introspects an access token and fails with TOKEN_INVALID
// when it is not active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.NewError("HTTP_REQUEST_ERROR", "Failed to create introspection request", err.Error(), false)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeNetwork, "Failed to send introspection request", err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("token introspection", resp)
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewError("DESERIALIZATION_ERROR", "Failed to decode token introspection response", err.Error(), false)
	}
	if !tokenInfo.Active {
		return nil, errors.NewError(errors.ErrCodeTokenInvalid, "Token is not active",
			"The provided access token is expired, revoked or malformed.", false)
	}
	return &tokenInfo, nil
}

// Ping checks that the realm's OpenID configuration is served.
func (k *KeycloakClient) Ping(ctx context.Context) error {
	target := fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", k.baseURL, k.realm)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("keycloak unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("keycloak realm %s: status %d", k.realm, resp.StatusCode)
	}
	return nil
}

func (k *KeycloakClient) postForm(ctx context.Context, target string, data url.Values) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}

func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

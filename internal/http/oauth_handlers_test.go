package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grantorhq/grantor/internal/identity"
	"github.com/grantorhq/grantor/internal/oauth"
	"github.com/grantorhq/grantor/internal/store/memory"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) (*httptest.Server, *oauth.Orchestrator) {
	t.Helper()
	store := memory.New()
	registry := oauth.NewRegistry(oauth.RegistryDeps{Clients: store.Clients()})
	codes := oauth.NewCodeLedger(oauth.CodeLedgerDeps{Codes: store.Codes()})
	tokens := oauth.NewTokenLedger(oauth.TokenLedgerDeps{
		Store:  store.Tokens(),
		Secret: []byte("handler-test-secret-0123456789-xx"),
		Issuer: "https://auth.test",
	})
	orch := oauth.NewOrchestrator(oauth.OrchestratorDeps{
		Registry: registry, Codes: codes, Tokens: tokens,
	})
	h := NewHandlers(HandlersDeps{
		Orchestrator: orch,
		Identity:     identity.NewProvider(store.Users()),
		Store:        store,
		AdminAPIKey:  testAdminKey,
	})
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	return srv, orch
}

func registerConfidentialClient(t *testing.T, orch *oauth.Orchestrator, scopes, grants []string) (string, string) {
	t.Helper()
	c, secret, err := orch.RegisterClient(context.Background(), oauth.RegisterClientInput{
		Name:         "test client",
		RedirectURIs: []string{"https://app/cb"},
		Scopes:       scopes,
		GrantTypes:   grants,
		Confidential: true,
	})
	require.NoError(t, err)
	return c.ClientID, secret
}

func postForm(t *testing.T, url string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestTokenEndpoint_ClientCredentials(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		[]string{"admin"}, []string{oauth.GrantClientCredentials})

	resp := postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"scope":         {"admin"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var body tokenResponse
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.AccessToken)
	require.Empty(t, body.RefreshToken)
	require.Equal(t, "Bearer", body.TokenType)
	require.Equal(t, "admin", body.Scope)
	require.EqualValues(t, 3600, body.ExpiresIn)
}

func TestTokenEndpoint_BasicAuthCredentials(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantClientCredentials})

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/oauth2/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, secret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestTokenEndpoint_InvalidClientIs401(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, _ := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantClientCredentials})

	resp := postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "invalid_client", body["error"])
}

func TestTokenEndpoint_UnsupportedGrantIs400(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantClientCredentials})

	resp := postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {secret},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	require.Equal(t, "unsupported_grant_type", body["error"])
}

func TestAuthorizeAndCodeExchange(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		[]string{"read:profile"},
		[]string{oauth.GrantAuthorizationCode, oauth.GrantRefreshToken})

	// Register the resource owner through the public endpoint.
	userBody, _ := json.Marshal(map[string]string{
		"username": "ann", "email": "ann@example.com", "password": "hunter2hunter2",
	})
	resp, err := http.Post(srv.URL+"/auth/register", "application/json", bytes.NewReader(userBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, srv.URL+"/oauth2/authorize", url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {"https://app/cb"},
		"response_type": {"code"},
		"scope":         {"read:profile"},
		"state":         {"xyz"},
		"email":         {"ann@example.com"},
		"password":      {"hunter2hunter2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var authz map[string]string
	decodeBody(t, resp, &authz)
	require.NotEmpty(t, authz["code"])
	require.Equal(t, "xyz", authz["state"])
	require.Contains(t, authz["redirect_to"], "https://app/cb?code=")

	resp = postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"code":          {authz["code"]},
		"redirect_uri":  {"https://app/cb"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pair tokenResponse
	decodeBody(t, resp, &pair)
	require.Equal(t, "read:profile", pair.Scope)
	require.NotEmpty(t, pair.RefreshToken)
}

func TestAuthorize_UnparsableRedirectURIStillReturnsCode(t *testing.T) {
	srv, orch := newTestServer(t)

	// Registration matches redirect URIs as opaque strings, so a URI with a
	// broken percent-escape is registrable and exact-matches at authorize.
	c, secret, err := orch.RegisterClient(context.Background(), oauth.RegisterClientInput{
		Name:         "odd redirect",
		RedirectURIs: []string{"https://app/cb%zz"},
		GrantTypes:   []string{oauth.GrantAuthorizationCode},
		Confidential: true,
	})
	require.NoError(t, err)

	userBody, _ := json.Marshal(map[string]string{
		"username": "bo", "email": "bo@example.com", "password": "hunter2hunter2",
	})
	resp, err := http.Post(srv.URL+"/auth/register", "application/json", bytes.NewReader(userBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postForm(t, srv.URL+"/oauth2/authorize", url.Values{
		"client_id":     {c.ClientID},
		"redirect_uri":  {"https://app/cb%zz"},
		"response_type": {"code"},
		"email":         {"bo@example.com"},
		"password":      {"hunter2hunter2"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var authz map[string]string
	decodeBody(t, resp, &authz)
	require.NotEmpty(t, authz["code"])
	require.NotContains(t, authz, "redirect_to")

	// The issued code is still redeemable.
	resp = postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.ClientID},
		"client_secret": {secret},
		"code":          {authz["code"]},
		"redirect_uri":  {"https://app/cb%zz"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthorize_BadOwnerCredentials(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, _ := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantAuthorizationCode})

	resp := postForm(t, srv.URL+"/oauth2/authorize", url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {"https://app/cb"},
		"response_type": {"code"},
		"email":         {"ghost@example.com"},
		"password":      {"nope"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRevokeEndpoint_Always200(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantClientCredentials})

	resp := postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
	})
	var pair tokenResponse
	decodeBody(t, resp, &pair)

	// Real token, then the same token again, then garbage. All 200.
	for _, token := range []string{pair.AccessToken, pair.AccessToken, "never-issued"} {
		resp := postForm(t, srv.URL+"/oauth2/revoke", url.Values{"token": {token}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestIntrospectEndpoint(t *testing.T) {
	srv, orch := newTestServer(t)
	clientID, secret := registerConfidentialClient(t, orch,
		nil, []string{oauth.GrantClientCredentials})

	resp := postForm(t, srv.URL+"/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
	})
	var pair tokenResponse
	decodeBody(t, resp, &pair)

	resp = postForm(t, srv.URL+"/oauth2/introspect", url.Values{"token": {pair.AccessToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var active introspectResponse
	decodeBody(t, resp, &active)
	require.True(t, active.Active)
	require.Equal(t, clientID, active.ClientID)

	// Revoke, then the same token introspects inactive with a 200.
	postForm(t, srv.URL+"/oauth2/revoke", url.Values{"token": {pair.AccessToken}}).Body.Close()

	resp = postForm(t, srv.URL+"/oauth2/introspect", url.Values{"token": {pair.AccessToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dead introspectResponse
	decodeBody(t, resp, &dead)
	require.False(t, dead.Active)
	require.Empty(t, dead.ClientID)
}

func TestAdminClients_RequiresKey(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(registerClientRequest{Name: "x"})
	resp, err := http.Post(srv.URL+"/admin/clients/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminClients_RegisterAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(registerClientRequest{
		Name:         "dashboard",
		RedirectURIs: []string{"https://app/cb"},
		Scopes:       []string{"read:profile"},
		GrantTypes:   []string{"authorization_code"},
		Confidential: true,
	})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/clients/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(adminKeyHeader, testAdminKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created clientResponse
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ClientID)
	require.NotEmpty(t, created.ClientSecret)

	// Fetching the client never re-exposes the secret.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/admin/clients/"+created.ClientID, nil)
	require.NoError(t, err)
	req.Header.Set(adminKeyHeader, testAdminKey)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched clientResponse
	decodeBody(t, resp, &fetched)
	require.Equal(t, created.ClientID, fetched.ClientID)
	require.Empty(t, fetched.ClientSecret)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

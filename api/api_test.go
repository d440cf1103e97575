package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewchat/crewseal/directory/memory"
	"github.com/crewchat/crewseal/envelope"
	"github.com/crewchat/crewseal/keystore"
	"github.com/crewchat/crewseal/messaging"
)

type testServer struct {
	*httptest.Server
	verifier *messaging.TOTPVerifier
}

func newTestServer(t *testing.T, svcOpts ...messaging.Option) *testServer {
	t.Helper()
	dir := memory.New()
	keys := keystore.New(dir)
	members := messaging.NewDirectoryMembership(dir)

	verifier := messaging.NewTOTPVerifier()
	svc := messaging.New(keys, members, svcOpts...)

	a := New(svc, members, WithStepUpVerifier(verifier))
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, verifier: verifier}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) initialize(t *testing.T, crewID, userID string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/crews/"+crewID+"/encryption/initialize", "",
		InitializeRequest{UserID: userID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out InitializeResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) addMember(t *testing.T, crewID, userID string) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/crews/"+crewID+"/members", "", MemberRequest{UserID: userID})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t)
	const crew = "crew-atlantis"

	s.addMember(t, crew, "alice")
	s.addMember(t, crew, "bob")
	aliceToken := s.initialize(t, crew, "alice")
	bobToken := s.initialize(t, crew, "bob")

	resp, body := s.do(t, http.MethodPost, "/crews/"+crew+"/messages", aliceToken, EncryptRequest{
		MessageType: "chat",
		Content:     []byte("rendezvous at 0600"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var msg envelope.EncryptedMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Len(t, msg.Keys, 2)

	resp, body = s.do(t, http.MethodPost, "/crews/"+crew+"/messages/decrypt", bobToken, DecryptRequest{Message: &msg})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var pt DecryptResponse
	require.NoError(t, json.Unmarshal(body, &pt))
	assert.Equal(t, []byte("rendezvous at 0600"), pt.Content)
	assert.Equal(t, "alice", pt.SenderID)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	const crew = "crew-atlantis"

	resp, body := s.do(t, http.MethodGet, "/crews/"+crew+"/encryption/status?user_id=alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.False(t, st.Initialized)

	s.initialize(t, crew, "alice")
	resp, body = s.do(t, http.MethodGet, "/crews/"+crew+"/encryption/status?user_id=alice", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Initialized)
	assert.Equal(t, uint64(1), st.ActiveVersion)

	resp, _ = s.do(t, http.MethodGet, "/crews/"+crew+"/encryption/status", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInitializeConflict(t *testing.T) {
	s := newTestServer(t)
	s.initialize(t, "crew-a", "alice")

	resp, _ := s.do(t, http.MethodPost, "/crews/crew-a/encryption/initialize", "",
		InitializeRequest{UserID: "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRotateAndDisable(t *testing.T) {
	s := newTestServer(t)
	const crew = "crew-atlantis"
	token := s.initialize(t, crew, "alice")

	resp, body := s.do(t, http.MethodPost, "/crews/"+crew+"/encryption/rotate", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rot RotateResponse
	require.NoError(t, json.Unmarshal(body, &rot))
	assert.Equal(t, uint64(2), rot.KeyVersion)

	resp, _ = s.do(t, http.MethodPost, "/crews/"+crew+"/encryption/disable", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Token is revoked with the identity.
	resp, _ = s.do(t, http.MethodPost, "/crews/"+crew+"/encryption/rotate", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodPost, "/crews/crew-a/encryption/rotate", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/crews/crew-a/encryption/rotate", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCrewMismatch(t *testing.T) {
	s := newTestServer(t)
	token := s.initialize(t, "crew-a", "alice")

	resp, _ := s.do(t, http.MethodPost, "/crews/crew-b/encryption/rotate", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDecryptErrors(t *testing.T) {
	s := newTestServer(t)
	const crew = "crew-atlantis"
	s.addMember(t, crew, "alice")
	s.addMember(t, crew, "bob")
	aliceToken := s.initialize(t, crew, "alice")
	bobToken := s.initialize(t, crew, "bob")

	resp, body := s.do(t, http.MethodPost, "/crews/"+crew+"/messages", aliceToken, EncryptRequest{
		MessageType: "chat",
		Content:     []byte("secret"),
		Recipients:  []string{"alice"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var msg envelope.EncryptedMessage
	require.NoError(t, json.Unmarshal(body, &msg))

	// bob is not a recipient of this message.
	resp, _ = s.do(t, http.MethodPost, "/crews/"+crew+"/messages/decrypt", bobToken, DecryptRequest{Message: &msg})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Tampered ciphertext.
	msg.Ciphertext[0] ^= 0x01
	resp, _ = s.do(t, http.MethodPost, "/crews/"+crew+"/messages/decrypt", aliceToken, DecryptRequest{Message: &msg})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEncryptValidationError(t *testing.T) {
	s := newTestServer(t)
	token := s.initialize(t, "crew-a", "alice")

	resp, _ := s.do(t, http.MethodPost, "/crews/crew-a/messages", token, EncryptRequest{
		MessageType: "chat",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRateLimitedResponse(t *testing.T) {
	s := newTestServer(t, messaging.WithRateLimit(1, time.Minute))
	token := s.initialize(t, "crew-a", "alice")

	req := EncryptRequest{MessageType: "chat", Content: []byte("x")}
	resp, body := s.do(t, http.MethodPost, "/crews/crew-a/messages", token, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, _ = s.do(t, http.MethodPost, "/crews/crew-a/messages", token, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMembersEndpoints(t *testing.T) {
	s := newTestServer(t)
	const crew = "crew-atlantis"
	s.addMember(t, crew, "alice")
	s.addMember(t, crew, "bob")

	resp, body := s.do(t, http.MethodGet, "/crews/"+crew+"/members", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out MembersResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.ElementsMatch(t, []string{"alice", "bob"}, out.Members)

	resp, _ = s.do(t, http.MethodDelete, "/crews/"+crew+"/members/bob", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/crews/"+crew+"/members", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.ElementsMatch(t, []string{"alice"}, out.Members)
}

func TestStepUpEnrollAndDecrypt(t *testing.T) {
	// The service enforces step-up against the same verifier the API
	// enrolls users into.
	dir := memory.New()
	members := messaging.NewDirectoryMembership(dir)
	verifier := messaging.NewTOTPVerifier()
	svc := messaging.New(keystore.New(dir), members, messaging.WithStepUp(verifier, "confidential"))
	a := New(svc, members, WithStepUpVerifier(verifier))
	s := &testServer{Server: httptest.NewServer(a.Router()), verifier: verifier}
	t.Cleanup(s.Close)

	const crew = "crew-atlantis"
	aliceToken := s.initialize(t, crew, "alice")
	bobToken := s.initialize(t, crew, "bob")

	resp, body := s.do(t, http.MethodPost, "/stepup/enroll", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var enroll StepUpEnrollResponse
	require.NoError(t, json.Unmarshal(body, &enroll))
	assert.NotEmpty(t, enroll.Secret)
	assert.Contains(t, enroll.ProvisioningURL, "otpauth://totp/")

	resp, body = s.do(t, http.MethodPost, "/crews/"+crew+"/messages", aliceToken, EncryptRequest{
		MessageType: "confidential",
		Content:     []byte("classified"),
		Recipients:  []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var msg envelope.EncryptedMessage
	require.NoError(t, json.Unmarshal(body, &msg))

	// Without a step-up code the decrypt is refused.
	resp, _ = s.do(t, http.MethodPost, "/crews/"+crew+"/messages/decrypt", bobToken, DecryptRequest{Message: &msg})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func ExampleAPI_Router() {
	dir := memory.New()
	members := messaging.NewDirectoryMembership(dir)
	svc := messaging.New(keystore.New(dir), members)
	a := New(svc, members)
	fmt.Println(a.Router() != nil)
	// Output: true
}

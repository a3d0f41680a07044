package httpapi

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/blobstore"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/codec"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/core"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	c, err := core.New(core.Config{
		MetaDBPath: ":memory:",
		Store:      blobstore.NewMemory(),
		Secret:     [32]byte{9, 9, 9},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewRouter(c)
}

func signUCAN(t *testing.T, priv ed25519.PrivateKey, iss, aud string, att map[string]map[string][]json.RawMessage, prf []string) string {
	t.Helper()
	nbf := float64(time.Now().Add(-time.Minute).Unix())
	exp := float64(time.Now().Add(time.Hour).Unix())
	token, err := codec.EncodeUCAN(codec.UCANClaims{
		Iss: iss,
		Aud: aud,
		Nbf: &nbf,
		Exp: &exp,
		Prf: prf,
		Att: att,
	}, jwt.SigningMethodEdDSA, priv)
	require.NoError(t, err)
	return token
}

func TestHealthzReturnsOK(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEveryResponseCarriesARequestID(t *testing.T) {
	router := newTestRouter(t)

	req1 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	id1 := rec1.Header().Get("X-Request-Id")
	assert.NotEmpty(t, id1)

	req2 := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	id2 := rec2.Header().Get("X-Request-Id")
	assert.NotEmpty(t, id2)

	assert.NotEqual(t, id1, id2)
}

func TestGeneratePeerReturnsDIDKey(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/peer/generate/tinycloud:key:zOwner:default", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "did:key:z")
}

func TestDelegateMissingAuthorizationIsUnauthorized(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/delegate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "MalformedCredential", body.Kind)
}

func TestDelegateThenInvokePutGetOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	ownerPub, ownerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	owner, err := verifier.EncodeDIDKey(ownerPub)
	require.NoError(t, err)

	sessionPub, sessionPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	session, err := verifier.EncodeDIDKey(sessionPub)
	require.NoError(t, err)

	spaceRes := "tinycloud:" + string(owner)[4:] + ":default/space"
	kvRes := "tinycloud:" + string(owner)[4:] + ":default/kv/notes"

	delegationToken := signUCAN(t, ownerPriv, string(owner), string(session),
		map[string]map[string][]json.RawMessage{
			spaceRes: {"tinycloud.space/host": nil},
			kvRes:    {"tinycloud.kv/put": nil, "tinycloud.kv/get": nil},
		}, nil)

	req := httptest.NewRequest(http.MethodPost, "/delegate", nil)
	req.Header.Set("Authorization", delegationToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	delegationID := rec.Body.String()
	require.NotEmpty(t, delegationID)

	putToken := signUCAN(t, sessionPriv, string(session), string(session),
		map[string]map[string][]json.RawMessage{kvRes: {"tinycloud.kv/put": nil}}, []string{delegationID})
	putReq := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader("hello world"))
	putReq.Header.Set("Authorization", putToken)
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	getToken := signUCAN(t, sessionPriv, string(session), string(session),
		map[string]map[string][]json.RawMessage{kvRes: {"tinycloud.kv/get": nil}}, []string{delegationID})
	getReq := httptest.NewRequest(http.MethodPost, "/invoke", nil)
	getReq.Header.Set("Authorization", getToken)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "hello world", getRec.Body.String())
}

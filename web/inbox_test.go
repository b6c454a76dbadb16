package web

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/gin-gonic/gin"
)

// signedInboxRequest builds a POST carrying a valid HTTP signature for the
// given remote keypair.
func signedInboxRequest(t *testing.T, path string, body []byte, keypair *util.RsaKeyPair, keyID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Host = testDomain
	req.Header.Set("Content-Type", activitypub.ContentTypeActivityJSON)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", testDomain)

	hash := sha256.Sum256(body)
	req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(hash[:]))

	privateKey, err := activitypub.ParsePrivateKey(keypair.Private)
	if err != nil {
		t.Fatalf("failed to parse test key: %v", err)
	}
	if err := activitypub.SignRequest(req, privateKey, keyID); err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInboxPostSignedFollow(t *testing.T) {
	router, svc := newTestServer(t)
	alice := newTestActor(t, svc, "alice")
	bob, keypair := seedRemoteActor(t, svc, "bob")

	follow := map[string]any{
		"id":     "https://remote.example/activities/follow-1",
		"type":   "Follow",
		"actor":  bob.ID,
		"to":     alice.ID,
		"object": alice.ID,
	}
	body, _ := json.Marshal(follow)

	req := signedInboxRequest(t, "/users/alice/inbox", body, keypair, bob.PublicKey.ID)
	w := serve(router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := svc.Store.GetActivity(context.Background(), "https://remote.example/activities/follow-1")
	if err != nil {
		t.Fatalf("delivered activity not stored: %v", err)
	}
	if !stored.Meta.Has(domain.MetaCollection, alice.Inbox[0]) {
		t.Error("activity not filed in the inbox collection")
	}
}

func TestInboxPostUnsignedRejected(t *testing.T) {
	router, svc := newTestServer(t)
	alice := newTestActor(t, svc, "alice")
	bob, _ := seedRemoteActor(t, svc, "bob")

	follow := map[string]any{
		"id":     "https://remote.example/activities/follow-2",
		"type":   "Follow",
		"actor":  bob.ID,
		"object": alice.ID,
	}
	body, _ := json.Marshal(follow)

	w := doJSON(t, router, http.MethodPost, "/users/alice/inbox", body)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestInboxPostWrongKeyRejected(t *testing.T) {
	router, svc := newTestServer(t)
	alice := newTestActor(t, svc, "alice")
	bob, _ := seedRemoteActor(t, svc, "bob")

	// signed with a keypair that is not bob's published one
	impostor := util.GeneratePemKeypair()
	follow := map[string]any{
		"id":     "https://remote.example/activities/follow-3",
		"type":   "Follow",
		"actor":  bob.ID,
		"object": alice.ID,
	}
	body, _ := json.Marshal(follow)

	req := signedInboxRequest(t, "/users/alice/inbox", body, impostor, bob.PublicKey.ID)
	w := serve(router, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestInboxPostInvalidBody(t *testing.T) {
	router, svc := newTestServer(t)
	newTestActor(t, svc, "alice")

	w := doJSON(t, router, http.MethodPost, "/users/alice/inbox", []byte("{{{"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not valid JSON-LD") {
		t.Errorf("unexpected error body: %s", w.Body.String())
	}
}

func TestInboxPostUnknownRecipient(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/users/ghost/inbox", []byte(`{"type":"Follow","id":"x","actor":"y"}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

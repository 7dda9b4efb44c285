package push

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newTestClient(t *testing.T, send http.HandlerFunc) (*FCMClient, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		if r.FormValue("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-1", "expires_in": 3600})
	})
	mux.HandleFunc("/send", send)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewFCMClient(ServiceAccount{
		ProjectID:   "test-project",
		PrivateKey:  testPrivateKeyPEM(t),
		ClientEmail: "svc@test-project.iam.gserviceaccount.com",
		TokenURI:    srv.URL + "/token",
	})
	client.sendURL = srv.URL + "/send"
	return client, &tokenCalls
}

func TestFCMSend(t *testing.T) {
	client, tokenCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			t.Errorf("authorization = %q", got)
		}
		var req fcmSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Message.Token != "tok-1" || req.Message.Notification.Title != "hi" {
			t.Errorf("message = %+v", req.Message)
		}
		_, _ = w.Write([]byte(`{"name":"projects/test-project/messages/1"}`))
	})

	err := client.Send(context.Background(), "tok-1", "hi", "body", map[string]string{"kind": "nudge"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Second send reuses the cached access token.
	if err := client.Send(context.Background(), "tok-1", "hi", "body", nil); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if got := atomic.LoadInt32(tokenCalls); got != 1 {
		t.Fatalf("token exchanges = %d, want 1", got)
	}
}

func TestFCMSendUnregistered(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"status":"NOT_FOUND","details":[{"errorCode":"UNREGISTERED"}]}}`))
	})

	err := client.Send(context.Background(), "stale", "hi", "body", nil)
	if !errors.Is(err, ErrUnregistered) {
		t.Fatalf("err = %v, want ErrUnregistered", err)
	}
}

func TestFCMSendRequiresToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if err := client.Send(context.Background(), "  ", "hi", "body", nil); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestParseServiceAccount(t *testing.T) {
	raw := []byte(`{"project_id":"p","private_key":"k","client_email":"e@p"}`)
	account, err := ParseServiceAccount(raw)
	if err != nil {
		t.Fatalf("ParseServiceAccount: %v", err)
	}
	if account.TokenURI != "https://oauth2.googleapis.com/token" {
		t.Fatalf("tokenURI = %q", account.TokenURI)
	}

	if _, err := ParseServiceAccount([]byte(`{"project_id":"p"}`)); err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

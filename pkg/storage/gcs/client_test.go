package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/gcp"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

const listPath = "/storage/v1/b/proofs/o"

// fakeBucket serves the slice of the JSON API the client touches.
func fakeBucket(t *testing.T, listStatus int, objects map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		rest, ok := strings.CutPrefix(r.URL.Path, listPath)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"no such bucket"}}`))
			return
		}
		if rest == "" {
			w.WriteHeader(listStatus)
			if listStatus != http.StatusOK {
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"kind":"storage#objects","items":[]}`))
			return
		}
		name := strings.TrimPrefix(rest, "/")
		status, found := objects[name]
		if !found {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"kind":"storage#object","bucket":"proofs","name":"` + name + `"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, http.StatusText(status))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, error) {
	t.Helper()
	return NewClient(context.Background(),
		config.GCSConfig{BucketName: "proofs", ProofPrefix: "payment-proofs", RequestTimeout: 2 * time.Second},
		config.GCPConfig{},
		logger.Nop(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
}

func TestNewClientChecksBucket(t *testing.T) {
	srv := fakeBucket(t, http.StatusForbidden, nil)
	if _, err := newTestClient(t, srv); err == nil {
		t.Fatal("expected bucket check to fail")
	}
}

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil)
	if err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestObjectExists(t *testing.T) {
	srv := fakeBucket(t, http.StatusOK, map[string]int{
		"payment-proofs/store/a.png": http.StatusOK,
		"payment-proofs/store/b.png": http.StatusInternalServerError,
	})
	client, err := newTestClient(t, srv)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if client.DefaultBucket() != "proofs" {
		t.Fatalf("unexpected bucket %q", client.DefaultBucket())
	}

	ctx := context.Background()
	exists, err := client.ObjectExists(ctx, "", "payment-proofs/store/a.png")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v %v", exists, err)
	}
	exists, err = client.ObjectExists(ctx, "proofs", "payment-proofs/store/missing.png")
	if err != nil || exists {
		t.Fatalf("expected missing object, got %v %v", exists, err)
	}
	if _, err := client.ObjectExists(ctx, "proofs", "payment-proofs/store/b.png"); err == nil {
		t.Fatal("expected upstream error to surface")
	}
	if _, err := client.ObjectExists(ctx, "proofs", ""); err == nil {
		t.Fatal("expected error for empty object name")
	}
}

func TestSignedURLUsesServiceAccountKey(t *testing.T) {
	srv := fakeBucket(t, http.StatusOK, nil)
	client, err := newTestClient(t, srv)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.signer = &gcp.ServiceAccount{ClientEmail: "signer@example.com", PrivateKey: pemKey(t)}

	object := "payment-proofs/store/invoice.png"
	raw, err := client.SignedURL("", object, "image/png", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/proofs/"+object) {
		t.Fatalf("unexpected path %s", u.Path)
	}
	q := u.Query()
	if q.Get("X-Goog-Algorithm") != "GOOG4-RSA-SHA256" {
		t.Fatalf("expected v4 signature, got %q", q.Get("X-Goog-Algorithm"))
	}
	if !strings.HasPrefix(q.Get("X-Goog-Credential"), "signer@example.com/") {
		t.Fatalf("unexpected credential %q", q.Get("X-Goog-Credential"))
	}
	if !strings.Contains(q.Get("X-Goog-SignedHeaders"), "content-type") {
		t.Fatalf("content type must be signed, got %q", q.Get("X-Goog-SignedHeaders"))
	}
	if q.Get("X-Goog-Signature") == "" {
		t.Fatal("signature missing")
	}
}

func TestSignedURLValidatesInput(t *testing.T) {
	srv := fakeBucket(t, http.StatusOK, nil)
	client, err := newTestClient(t, srv)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.signer = &gcp.ServiceAccount{ClientEmail: "signer@example.com", PrivateKey: pemKey(t)}

	for name, call := range map[string]func() (string, error){
		"object":       func() (string, error) { return client.SignedURL("", " ", "image/png", time.Minute) },
		"content type": func() (string, error) { return client.SignedURL("", "a.png", "", time.Minute) },
		"expiry":       func() (string, error) { return client.SignedURL("", "a.png", "image/png", 0) },
	} {
		if _, err := call(); err == nil {
			t.Fatalf("expected %s validation error", name)
		}
	}

	var nilClient *Client
	if _, err := nilClient.SignedURL("proofs", "a.png", "image/png", time.Minute); err == nil {
		t.Fatal("expected error from nil client")
	}
}

func TestParseObjectURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		bucket string
		object string
		ok     bool
	}{
		{"gs://proofs/store/a.png", "proofs", "store/a.png", true},
		{"https://storage.googleapis.com/proofs/store/a.png", "proofs", "store/a.png", true},
		{"https://storage.googleapis.com/proofs/store/a.png?X-Goog-Signature=x", "proofs", "store/a.png", true},
		{"https://proofs.storage.googleapis.com/store/a.png", "proofs", "store/a.png", true},
		{"https://example.com/proofs/a.png", "", "", false},
		{"https://storage.googleapis.com/proofs", "", "", false},
		{"ftp://storage.googleapis.com/proofs/a.png", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range cases {
		bucket, object, ok := ParseObjectURL(tc.raw)
		if ok != tc.ok || bucket != tc.bucket || object != tc.object {
			t.Fatalf("ParseObjectURL(%q) = %q, %q, %v", tc.raw, bucket, object, ok)
		}
	}
	if got := ObjectURL("proofs", "store/a.png"); got != "https://storage.googleapis.com/proofs/store/a.png" {
		t.Fatalf("unexpected object url %s", got)
	}
}

func pemKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

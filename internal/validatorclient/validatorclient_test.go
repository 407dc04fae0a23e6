package validatorclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wkennedy/trollup/internal/types"
)

func TestProveReturnsSignatureOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		var body ProveRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ProveResponse{Success: true, Signature: "0xabc"})
	}))
	defer srv.Close()

	client := New(srv.URL)
	sig, err := client.Prove(context.Background(), types.Digest{1}, []byte(`{"a":1}`), []byte("pub"), []byte("vk"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if sig != "0xabc" {
		t.Errorf("got %q, want %q", sig, "0xabc")
	}
}

func TestProveReturnsErrorOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ProveResponse{Success: false})
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.Prove(context.Background(), types.Digest{1}, []byte(`{}`), []byte("pub"), []byte("vk"))
	if err == nil {
		t.Error("expected an error when the validator rejects the proof")
	}
}

func TestProveReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.Prove(context.Background(), types.Digest{1}, []byte(`{}`), []byte("pub"), []byte("vk"))
	if err == nil {
		t.Error("expected an error on a non-2xx response")
	}
}

func TestProveEncodesStateRootAsBase64URLPathSegment(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(ProveResponse{Success: true, Signature: "sig"})
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.Prove(context.Background(), types.Digest{0xAB}, []byte(`{}`), []byte("pub"), []byte("vk"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if !strings.Contains(gotPath, "/prove/") {
		t.Errorf("path %q does not contain /prove/", gotPath)
	}
	if strings.Contains(gotPath, "+") {
		t.Errorf("path %q looks like standard base64, not base64url", gotPath)
	}
}

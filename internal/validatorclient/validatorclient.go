// Package validatorclient implements the ValidatorClient capability (spec
// §4.6): POST a base64url-encoded state root and a prepared proof to the
// validator, parse back a success flag and an opaque L1 signature. Grounded
// on the teacher's plain net/http handler style (pkg/server/*_handlers.go)
// and pkg/ethereum/client.go's fmt.Errorf("...: %w", err) wrapping — no
// router library, no retry logic here (spec §4.6: "no automatic retry at
// this layer").
package validatorclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wkennedy/trollup/internal/trollerr"
	"github.com/wkennedy/trollup/internal/types"
)

// ProveRequest is the JSON body POSTed to /prove/{state_root_b64url}
// (spec §6's literal contract: proof, public_inputs, verifying_key).
type ProveRequest struct {
	Proof        []byte `json:"proof"`
	PublicInputs []byte `json:"public_inputs"`
	VerifyingKey []byte `json:"verifying_key"`
}

// ProveResponse is the validator's response shape.
type ProveResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature"`
}

// Client talks to a single validator's HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "https://validator.example").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Prove posts preparedWire, publicInputs, and verifyingKey for stateRoot and
// returns the validator's L1 signature on success — the three artifacts the
// validator's on-chain pairing check requires (spec §6). A transport failure,
// a non-2xx response or an undecodable body is reported as a
// trollerr.Transient error; a { success: false } body is reported as
// trollerr.ProofInvalid — the caller (StateCommitment) decides whether to
// retry or abort (spec §4.6).
func (c *Client) Prove(ctx context.Context, stateRoot types.Digest, preparedWire, publicInputs, verifyingKey []byte) (string, error) {
	encodedRoot := base64.URLEncoding.EncodeToString(stateRoot[:])
	url := fmt.Sprintf("%s/prove/%s", c.baseURL, encodedRoot)

	body, err := json.Marshal(ProveRequest{
		Proof:        preparedWire,
		PublicInputs: publicInputs,
		VerifyingKey: verifyingKey,
	})
	if err != nil {
		return "", trollerr.Wrap(trollerr.Fatal, "validatorclient.Prove", fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", trollerr.Wrap(trollerr.Fatal, "validatorclient.Prove", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", trollerr.Wrap(trollerr.Transient, "validatorclient.Prove", fmt.Errorf("POST %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", trollerr.Wrap(trollerr.Transient, "validatorclient.Prove", fmt.Errorf("validator returned status %d", resp.StatusCode))
	}

	var parsed ProveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", trollerr.Wrap(trollerr.Transient, "validatorclient.Prove", fmt.Errorf("decode response: %w", err))
	}
	if !parsed.Success {
		return "", trollerr.Wrap(trollerr.ProofInvalid, "validatorclient.Prove", fmt.Errorf("validator rejected proof for state root %x", stateRoot))
	}
	return parsed.Signature, nil
}

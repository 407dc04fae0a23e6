package statecommitment

import (
	"context"

	"github.com/wkennedy/trollup/internal/types"
)

// ValidatorProver is the subset of validatorclient.Client the orchestrator
// depends on — narrowed to an interface so tests can substitute a fake
// validator without standing up an HTTP server. The validator's on-chain
// pairing check needs all three artifacts spec §6 names in the request
// body: the prepared proof, the public inputs, and the verifying key.
type ValidatorProver interface {
	Prove(ctx context.Context, stateRoot types.Digest, preparedWire, publicInputs, verifyingKey []byte) (string, error)
}

// Confirmer is the subset of validatorclient.Confirmer the orchestrator
// depends on for the direct path's "poll until confirmed" step.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, signature string) error
}

// NoopConfirmer treats every signature as immediately confirmed. Used when
// no parent-chain RPC endpoint is configured (e.g. local/test deployments
// that skip L1 confirmation).
type NoopConfirmer struct{}

func (NoopConfirmer) AwaitConfirmation(ctx context.Context, signature string) error { return nil }

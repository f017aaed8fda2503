// Package chain defines the contract towards the wallet and identity layer:
// asset transfers, identity-token minting and lookup. The concrete RPC wrapper
// is provided at process start; everything in this repo programs against the
// Service interface.
package chain

import (
	"context"
	"errors"
)

type Asset string

const (
	AssetNative Asset = "native"
	AssetStable Asset = "stable"
)

type (
	Service interface {
		// Transfer moves amount (smallest denomination) of the asset from the
		// treasury to the target wallet and returns the transaction hash.
		Transfer(ctx context.Context, asset Asset, amount uint64, to string) (string, error)

		// MintIdentity uploads the descriptor document and mints an identity
		// token to the custodial wallet, returning the mint address.
		MintIdentity(ctx context.Context, descriptor IdentityDescriptor) (string, error)

		// TransferIdentity moves a minted identity token from the custodial
		// wallet to its true owner.
		TransferIdentity(ctx context.Context, mint string, to string) error

		// LoadIdentity fetches the descriptor document of a minted token.
		LoadIdentity(ctx context.Context, mint string) (*IdentityDescriptor, error)

		// OwnedTokensOf lists the identity-standard tokens held by a wallet.
		OwnedTokensOf(ctx context.Context, wallet string) ([]string, error)
	}

	// IdentityDescriptor is the document behind an identity token. ServerId
	// carries the provider-assigned instance id so a lost database row can be
	// reconstructed from chain state alone.
	IdentityDescriptor struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Image       string `json:"image,omitempty"`
		ServerId    int64  `json:"serverId,omitempty"`
	}
)

// ErrNotConfigured is returned by the nullService stand-in that is wired when
// no RPC endpoint is configured.
var ErrNotConfigured = errors.New("no chain RPC endpoint is configured")

type nullService struct{}

// CreateNullService returns a Service that rejects every call. Used in
// deployments that run without a chain backend; minting then fails softly and
// instances still reach running.
func CreateNullService() Service {
	return &nullService{}
}

func (s *nullService) Transfer(context.Context, Asset, uint64, string) (string, error) {
	return "", ErrNotConfigured
}

func (s *nullService) MintIdentity(context.Context, IdentityDescriptor) (string, error) {
	return "", ErrNotConfigured
}

func (s *nullService) TransferIdentity(context.Context, string, string) error {
	return ErrNotConfigured
}

func (s *nullService) LoadIdentity(context.Context, string) (*IdentityDescriptor, error) {
	return nil, ErrNotConfigured
}

func (s *nullService) OwnedTokensOf(context.Context, string) ([]string, error) {
	return nil, ErrNotConfigured
}

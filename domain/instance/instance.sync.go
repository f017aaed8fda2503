package instance

import (
	"agentboxBackend/auth"
	"agentboxBackend/domain/event"
	"agentboxBackend/utils"
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
)

// Sync reconciles on-chain identity ownership with the stored rows. The chain
// is the source of truth; the database is a cache that has to catch up.
//
// A "claim" reassigns a known instance whose stored owner lags behind an
// on-chain transfer. A "recovery" rebuilds the mint/owner linkage of a row
// from the server-id marker embedded in the token's descriptor, covering rows
// that were lost or never correctly updated.
//
// Admins may reconcile on behalf of another wallet; everyone else reconciles
// their own.
func (s *instanceService) Sync(ctx context.Context, requestedWallet string, caller auth.AuthenticatedCaller) (*SyncOut, error) {
	wallet := caller.Wallet
	if requestedWallet != "" && s.authManager.IsAdmin(caller) {
		wallet = requestedWallet
	}
	if wallet == "" {
		return nil, utils.ErrorValidationError
	}

	ownedMints, err := s.chainService.OwnedTokensOf(ctx, wallet)
	if err != nil {
		log.Errorf("[CHAIN] Failed to list tokens of wallet %s: %s", wallet, err.Error())
		return nil, utils.ErrorUpstreamUnavailable
	}

	result := &SyncOut{}

	for _, mint := range ownedMints {
		known, err := s.instanceRepo.GetByNftMint(ctx, mint)
		if err != nil && !errors.Is(err, utils.ErrorInstanceNotFound) {
			return nil, err
		}

		if known != nil {
			if strings.EqualFold(known.OwnerWallet, wallet) {
				continue
			}

			previousOwner := known.OwnerWallet
			if err := s.instanceRepo.UpdateOwnership(ctx, known.Id, wallet, mint); err != nil {
				return nil, err
			}

			s.events.Record(event.TypeInstanceClaimed, event.ActorWallet(wallet), entityId(known.Id), map[string]any{
				"wallet":        wallet,
				"previousOwner": previousOwner,
			})
			result.Claimed++
			continue
		}

		if recovered := s.recoverFromDescriptor(ctx, mint, wallet); recovered {
			result.Recovered++
		}
	}

	log.Info("[CHAIN] Reconciliation finished", "wallet", wallet, "claimed", result.Claimed, "recovered", result.Recovered)

	return result, nil
}

// recoverFromDescriptor inspects an unknown mint. Tokens that cannot be
// loaded or carry no server-id marker are skipped without error.
func (s *instanceService) recoverFromDescriptor(ctx context.Context, mint string, wallet string) bool {
	descriptor, err := s.chainService.LoadIdentity(ctx, mint)
	if err != nil {
		log.Warnf("[CHAIN] Skipping unreadable identity %s: %s", mint, err.Error())
		return false
	}
	if descriptor.ServerId == 0 {
		return false
	}

	instance, err := s.instanceRepo.GetById(ctx, descriptor.ServerId)
	if err != nil {
		return false
	}

	mintMatches := instance.NftMint != nil && *instance.NftMint == mint
	if mintMatches && strings.EqualFold(instance.OwnerWallet, wallet) {
		return false
	}

	if err := s.instanceRepo.UpdateOwnership(ctx, instance.Id, wallet, mint); err != nil {
		log.Errorf("[CHAIN] Failed to recover instance %d from identity %s: %s", instance.Id, mint, err.Error())
		return false
	}

	s.events.Record(event.TypeInstanceRecovered, event.ActorWallet(wallet), entityId(instance.Id), map[string]any{
		"mint":   mint,
		"wallet": wallet,
	})

	return true
}

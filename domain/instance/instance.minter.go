package instance

import (
	"agentboxBackend/auth"
	"agentboxBackend/chain"
	"agentboxBackend/domain/event"
	"agentboxBackend/utils"
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// RetryMint re-runs funding and identity minting for an instance whose first
// attempt failed. The transition into minting is a single conditional update,
// so two near-simultaneous retries can never both start a mint.
func (s *instanceService) RetryMint(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	if instance.NftMint != nil {
		return utils.ErrorMintAlreadyDone
	}
	if instance.VmWallet == nil {
		return utils.ErrorMissingVmWallet
	}

	started, err := s.instanceRepo.BeginMint(ctx, id)
	if err != nil {
		return err
	}
	if !started {
		return utils.ErrorMintInProgress
	}

	instance.Status = StatusMinting
	go s.finalizeMint(context.Background(), instance)

	return nil
}

// finalizeMint funds the VM wallet and mints the on-chain identity. It always
// ends with the instance in running: a failed funding or mint leaves audit
// events behind and is recoverable through the retry endpoint, it never
// strands the instance in minting.
func (s *instanceService) finalizeMint(ctx context.Context, instance *Instance) {
	if instance.VmWallet == nil {
		log.Warnf("[MINT] Instance %d reached minting without a VM wallet, skipping funding and mint", instance.Id)
		s.finishMint(ctx, instance.Id, nil)
		return
	}

	s.fundVmWallet(ctx, instance)

	mint := s.mintIdentity(ctx, instance)
	s.finishMint(ctx, instance.Id, mint)
}

// fundVmWallet attempts the native and the stable-token transfer concurrently
// and independently. Either may fail without affecting the other or the
// subsequent mint.
func (s *instanceService) fundVmWallet(ctx context.Context, instance *Instance) {
	transfers := []struct {
		asset  chain.Asset
		amount uint64
	}{
		{chain.AssetNative, s.config.Chain.FundNativeAmount},
		{chain.AssetStable, s.config.Chain.FundStableAmount},
	}

	var waitGroup sync.WaitGroup
	for _, transfer := range transfers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			txHash, err := s.chainService.Transfer(ctx, transfer.asset, transfer.amount, *instance.VmWallet)
			if err != nil {
				log.Errorf("[MINT] Failed to fund instance %d with %s: %s", instance.Id, transfer.asset, err.Error())
				s.events.Record(event.TypeFundingFailed, event.ActorSystem, entityId(instance.Id), map[string]any{
					"asset":  string(transfer.asset),
					"reason": err.Error(),
				})
				return
			}

			log.Info("[MINT] Funded VM wallet", "instance", instance.Id, "asset", transfer.asset, "tx", txHash)
		}()
	}
	waitGroup.Wait()
}

// mintIdentity mints the identity token to the custodial wallet first and
// then hands it to the true owner. Minting through the custodial wallet
// avoids a cross-signer edge case during the mint transaction itself.
// Returns nil when no usable mint was produced.
func (s *instanceService) mintIdentity(ctx context.Context, instance *Instance) *string {
	descriptor := chain.IdentityDescriptor{
		Name:     instance.Name,
		ServerId: instance.Id,
	}

	mint, err := s.chainService.MintIdentity(ctx, descriptor)
	if err != nil {
		log.Errorf("[MINT] Failed to mint identity for instance %d: %s", instance.Id, err.Error())
		s.events.Record(event.TypeMintFailed, event.ActorSystem, entityId(instance.Id), map[string]any{
			"reason": err.Error(),
		})
		return nil
	}

	if err := s.chainService.TransferIdentity(ctx, mint, instance.OwnerWallet); err != nil {
		// The token sits in the custodial wallet; a manual retry will mint
		// and transfer again, and reconciliation can recover the linkage.
		log.Errorf("[MINT] Identity %s of instance %d stays in the custodial wallet, transfer to owner failed: %s",
			mint, instance.Id, err.Error())
		s.events.Record(event.TypeIdentityTransferFailed, event.ActorSystem, entityId(instance.Id), map[string]any{
			"mint":   mint,
			"reason": err.Error(),
		})
		return nil
	}

	s.events.Record(event.TypeMintSucceeded, event.ActorSystem, entityId(instance.Id), map[string]any{
		"mint": mint,
	})
	log.Info("[MINT] Identity minted and transferred", "instance", instance.Id, "mint", mint)

	return &mint
}

func (s *instanceService) finishMint(ctx context.Context, id int64, mint *string) {
	if err := s.instanceRepo.FinishMint(ctx, id, mint); err != nil {
		log.Errorf("[MINT] Failed to move instance %d to running: %s", id, err.Error())
	}
}

package instance

import (
	"agentboxBackend/auth"
	"agentboxBackend/chain"
	"agentboxBackend/config"
	"agentboxBackend/cryptoutils"
	"agentboxBackend/deployment"
	"agentboxBackend/dns"
	"agentboxBackend/domain/event"
	"agentboxBackend/session"
	"agentboxBackend/telegram"
	"agentboxBackend/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
)

type (
	Service interface {
		Login(req auth.WalletLoginIn) (string, error)

		Create(ctx context.Context, req InstanceIn, caller auth.AuthenticatedCaller) (*InstanceOut, error)
		GetAll(ctx context.Context, includeAll bool, caller auth.AuthenticatedCaller) ([]InstanceOut, error)
		GetExpiring(ctx context.Context, days uint, includeAll bool, caller auth.AuthenticatedCaller) ([]InstanceOut, error)
		GetById(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*InstanceOut, error)
		Rename(ctx context.Context, id int64, req RenameIn, caller auth.AuthenticatedCaller) error
		UpdateAgent(ctx context.Context, id int64, req AgentIn, caller auth.AuthenticatedCaller) error
		Delete(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error
		RetryMint(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error
		Restart(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error
		Extend(ctx context.Context, id int64, req ExtendIn, caller auth.AuthenticatedCaller) (*InstanceOut, error)
		GetAccess(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*AccessOut, error)
		GetHealth(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*HealthOut, error)
		GetEvents(ctx context.Context, id int64, caller auth.AuthenticatedCaller) ([]event.EventOut, error)
		Withdraw(ctx context.Context, id int64, req WithdrawIn, caller auth.AuthenticatedCaller) (string, error)
		Sync(ctx context.Context, requestedWallet string, caller auth.AuthenticatedCaller) (*SyncOut, error)

		ReportStep(ctx context.Context, req StepIn) error
		HandleCallback(ctx context.Context, req CallbackIn) error
		GetBootConfig(ctx context.Context, id int64, token string) (*ConfigOut, error)

		SweepExpired(ctx context.Context) (int, error)
	}

	instanceService struct {
		config       *config.AgentboxConfig
		instanceRepo Repository
		events       event.Recorder
		authManager  auth.AuthManager
		vmProvider   deployment.VmProvider
		dnsClient    dns.Client
		chainService chain.Service
		telegram     telegram.Client
		bridge       session.Bridge
		cipher       *cryptoutils.CredentialCipher
		healthClient *http.Client
	}
)

const nameAllocationAttempts = 5
const eventHistoryLimit = 50

func CreateService(
	config *config.AgentboxConfig,
	instanceRepo Repository,
	events event.Recorder,
	authManager auth.AuthManager,
	vmProvider deployment.VmProvider,
	dnsClient dns.Client,
	chainService chain.Service,
	telegramClient telegram.Client,
	bridge session.Bridge,
	cipher *cryptoutils.CredentialCipher,
) Service {
	return &instanceService{
		config:       config,
		instanceRepo: instanceRepo,
		events:       events,
		authManager:  authManager,
		vmProvider:   vmProvider,
		dnsClient:    dnsClient,
		chainService: chainService,
		telegram:     telegramClient,
		bridge:       bridge,
		cipher:       cipher,
		healthClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *instanceService) Login(req auth.WalletLoginIn) (string, error) {
	return s.authManager.LoginWallet(req)
}

func (s *instanceService) Create(ctx context.Context, req InstanceIn, caller auth.AuthenticatedCaller) (*InstanceOut, error) {
	name, err := s.allocateName(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	// Channel validation happens before any VM exists so an invalid token
	// costs no compute.
	var botUsername *string
	if req.TelegramBotToken != nil {
		username, err := s.telegram.ValidateBotToken(ctx, *req.TelegramBotToken)
		if err != nil {
			log.Warnf("[VM] Rejected channel token during creation: %s", err.Error())
			return nil, utils.ErrorInvalidChannelToken
		}
		botUsername = &username

		if err := s.telegram.ClearWebhook(ctx, *req.TelegramBotToken); err != nil {
			log.Warnf("[VM] Failed to clear stale webhook for bot %s: %s", username, err.Error())
		}
	}

	callbackToken := utils.GenerateSecureToken(32)
	terminalToken := utils.GenerateSecureToken(24)
	gatewayToken := utils.GenerateSecureToken(24)

	server, location, err := s.createServerWithFallback(ctx, deployment.CreateRequest{
		Name:       name,
		ServerType: s.config.Compute.ServerType,
		SnapshotId: s.config.Compute.SnapshotId,
		UserData:   s.buildUserData(callbackToken, req.TelegramBotToken),
	})
	if err != nil {
		s.events.Record(event.TypeInstanceCreateFailed, actorFor(caller), "", map[string]any{
			"name":   name,
			"owner":  caller.Wallet,
			"reason": err.Error(),
		})
		return nil, err
	}

	hostname := fmt.Sprintf("%s.%s", name, s.config.Dns.Domain)
	if err := s.dnsClient.CreateRecord(ctx, hostname, server.Ip); err != nil {
		// Not fatal: the instance exists, it just isn't resolvable yet.
		log.Warnf("[DNS] Failed to attach record %s: %s", hostname, err.Error())
	}

	newInstance := &Instance{
		Id:                  server.Id,
		Name:                name,
		OwnerWallet:         caller.Wallet,
		Status:              StatusProvisioning,
		ProvisioningStep:    lo.ToPtr(StepVmCreated),
		Ip:                  server.Ip,
		GatewayToken:        gatewayToken,
		TerminalToken:       terminalToken,
		CallbackToken:       &callbackToken,
		TelegramBotUsername: botUsername,
		SnapshotId:          s.config.Compute.SnapshotId,
		ExpiresAt:           time.Now().Add(time.Duration(s.config.Expiry.DefaultDays) * 24 * time.Hour),
	}

	if encrypted, err := s.cipher.Encrypt(server.RootPassword); err == nil {
		newInstance.RootPassword = encrypted
	} else {
		log.Errorf("[VM] Failed to encrypt root credential for %s: %s", name, err.Error())
	}

	if req.TelegramBotToken != nil {
		encrypted, err := s.cipher.Encrypt(*req.TelegramBotToken)
		if err != nil {
			log.Errorf("[VM] Failed to encrypt bot token for %s: %s", name, err.Error())
		} else {
			newInstance.TelegramBotToken = &encrypted
		}
	}

	if err := s.instanceRepo.Create(ctx, newInstance); err != nil {
		// The VM and the record exist but the row does not; tear both down
		// again rather than leak them.
		if deleteErr := s.vmProvider.Delete(ctx, server.Id); deleteErr != nil {
			log.Errorf("[VM] Failed to clean up server %d after row insert failure: %s", server.Id, deleteErr.Error())
		}
		if dnsErr := s.dnsClient.DeleteRecord(ctx, hostname); dnsErr != nil {
			log.Warnf("[DNS] Failed to remove record %s after row insert failure: %s", hostname, dnsErr.Error())
		}
		s.events.Record(event.TypeInstanceCreateFailed, actorFor(caller), "", map[string]any{
			"name":   name,
			"owner":  caller.Wallet,
			"reason": "failed to persist instance row",
		})
		return nil, err
	}

	s.events.Record(event.TypeInstanceCreated, actorFor(caller), entityId(server.Id), map[string]any{
		"name":       name,
		"owner":      caller.Wallet,
		"location":   location,
		"snapshotId": s.config.Compute.SnapshotId,
	})
	log.Info("[VM] Instance created", "id", server.Id, "name", name, "owner", caller.Wallet, "location", location)

	return lo.ToPtr(toInstanceOut(newInstance)), nil
}

// allocateName validates a caller-supplied name or generates a free one,
// giving up after a fixed number of collisions.
func (s *instanceService) allocateName(ctx context.Context, requested *string) (string, error) {
	if requested != nil {
		if !utils.IsValidInstanceName(*requested) {
			return "", utils.ErrorInvalidName
		}

		taken, err := s.instanceRepo.NameTaken(ctx, *requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", utils.ErrorNameTaken
		}

		return *requested, nil
	}

	for attempt := 0; attempt < nameAllocationAttempts; attempt++ {
		candidate := utils.GenerateInstanceName()
		taken, err := s.instanceRepo.NameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", utils.ErrorNameAllocation
}

// createServerWithFallback walks the ordered location list and returns the
// server together with the location that accepted it. Only a capacity error
// moves on to the next location, anything else aborts creation.
func (s *instanceService) createServerWithFallback(ctx context.Context, request deployment.CreateRequest) (*deployment.Server, string, error) {
	for _, location := range s.config.Compute.Locations {
		request.Location = location

		server, err := s.vmProvider.Create(ctx, request)
		if err == nil {
			return server, location, nil
		}

		if errors.Is(err, deployment.ErrLocationCapacity) {
			log.Warnf("[VM] Location %s has no capacity, trying next", location)
			continue
		}

		log.Errorf("[VM] Server creation failed in %s: %s", location, err.Error())
		return nil, "", utils.ErrorVmProvider
	}

	return nil, "", utils.ErrorVmCapacity
}

// buildUserData renders the cloud-init payload the VM boots with. It carries
// the API base URL and the single-use callback token; the box discovers its
// own server id through the provider metadata service. Nothing in here
// outlives the provisioning window except what the agent itself needs.
func (s *instanceService) buildUserData(callbackToken string, botToken *string) string {
	var builder strings.Builder

	builder.WriteString("#cloud-config\n")
	builder.WriteString("write_files:\n")
	builder.WriteString("  - path: /etc/agentbox/bootstrap.env\n")
	builder.WriteString("    permissions: \"0600\"\n")
	builder.WriteString("    content: |\n")
	builder.WriteString("      AGENTBOX_API_URL=" + s.config.Server.PublicBaseUrl + "\n")
	builder.WriteString("      AGENTBOX_CALLBACK_TOKEN=" + callbackToken + "\n")
	if botToken != nil {
		builder.WriteString("      AGENTBOX_TELEGRAM_BOT_TOKEN=" + *botToken + "\n")
	}
	builder.WriteString("runcmd:\n")
	builder.WriteString("  - [systemctl, start, agent-bootstrap]\n")

	return builder.String()
}

func (s *instanceService) GetAll(ctx context.Context, includeAll bool, caller auth.AuthenticatedCaller) ([]InstanceOut, error) {
	var owner *string
	if !(includeAll && s.authManager.IsAdmin(caller)) {
		owner = &caller.Wallet
	}

	instances, err := s.instanceRepo.GetAll(ctx, owner)
	if err != nil {
		return nil, err
	}

	return lo.Map(instances, func(item Instance, _ int) InstanceOut {
		return toInstanceOut(&item)
	}), nil
}

func (s *instanceService) GetExpiring(ctx context.Context, days uint, includeAll bool, caller auth.AuthenticatedCaller) ([]InstanceOut, error) {
	var owner *string
	if !(includeAll && s.authManager.IsAdmin(caller)) {
		owner = &caller.Wallet
	}

	instances, err := s.instanceRepo.GetExpiringWithin(ctx, owner, days)
	if err != nil {
		return nil, err
	}

	return lo.Map(instances, func(item Instance, _ int) InstanceOut {
		return toInstanceOut(&item)
	}), nil
}

func (s *instanceService) GetById(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*InstanceOut, error) {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	return lo.ToPtr(toInstanceOut(instance)), nil
}

func (s *instanceService) Rename(ctx context.Context, id int64, req RenameIn, caller auth.AuthenticatedCaller) error {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	if !utils.IsValidInstanceName(req.Name) {
		return utils.ErrorInvalidName
	}
	if req.Name == instance.Name {
		return nil
	}

	taken, err := s.instanceRepo.NameTaken(ctx, req.Name)
	if err != nil {
		return err
	}
	if taken {
		return utils.ErrorNameTaken
	}

	previousName := instance.Name
	instance.Name = req.Name
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return err
	}

	s.events.Record(event.TypeInstanceRenamed, actorFor(caller), entityId(id), map[string]any{
		"from": previousName,
		"to":   req.Name,
	})

	return nil
}

// UpdateAgent pushes identity metadata onto the running box over the session
// bridge and mirrors the channel binding in the row.
func (s *instanceService) UpdateAgent(ctx context.Context, id int64, req AgentIn, caller auth.AuthenticatedCaller) error {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}
	if instance.Status != StatusRunning {
		return utils.ErrorInstanceNotRunning
	}

	rootPassword, err := s.cipher.Decrypt(instance.RootPassword)
	if err != nil {
		log.Errorf("[SSH] Failed to decrypt root credential of instance %d: %s", id, err.Error())
		return utils.ErrorSessionFailed
	}

	patch := session.AgentConfigPatch{
		DisplayName: req.DisplayName,
		Description: req.Description,
	}
	if err := s.bridge.PushAgentConfig(ctx, instance.Ip, rootPassword, patch); err != nil {
		log.Errorf("[SSH] Failed to push agent config to instance %d: %s", id, err.Error())
		return utils.ErrorSessionFailed
	}

	s.events.Record(event.TypeInstanceAgentUpdated, actorFor(caller), entityId(id), map[string]any{})

	return nil
}

func (s *instanceService) Delete(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	if err := s.instanceRepo.SetStatus(ctx, id, StatusDeleting); err != nil {
		return err
	}

	s.teardown(ctx, instance)

	if err := s.instanceRepo.SetStatus(ctx, id, StatusDeleted); err != nil {
		return err
	}
	if err := s.instanceRepo.Delete(ctx, instance); err != nil {
		return err
	}

	s.events.Record(event.TypeInstanceDeleted, actorFor(caller), entityId(id), map[string]any{
		"reason": "user",
	})
	log.Info("[VM] Instance deleted", "id", id, "name", instance.Name)

	return nil
}

// teardown releases the external resources of an instance. Failures are
// logged, never fatal: provider deletes are idempotent and the row is
// authoritative over the external resource.
func (s *instanceService) teardown(ctx context.Context, instance *Instance) {
	if err := s.vmProvider.Delete(ctx, instance.Id); err != nil {
		log.Warnf("[VM] Failed to delete server %d: %s", instance.Id, err.Error())
	}

	hostname := fmt.Sprintf("%s.%s", instance.Name, s.config.Dns.Domain)
	if err := s.dnsClient.DeleteRecord(ctx, hostname); err != nil {
		log.Warnf("[DNS] Failed to delete record %s: %s", hostname, err.Error())
	}
}

func (s *instanceService) Restart(ctx context.Context, id int64, caller auth.AuthenticatedCaller) error {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	if err := s.vmProvider.Reboot(ctx, instance.Id); err != nil {
		log.Errorf("[VM] Failed to reboot server %d: %s", id, err.Error())
		return utils.ErrorVmProvider
	}

	s.events.Record(event.TypeInstanceRestarted, actorFor(caller), entityId(id), map[string]any{})

	return nil
}

func (s *instanceService) Extend(ctx context.Context, id int64, req ExtendIn, caller auth.AuthenticatedCaller) (*InstanceOut, error) {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	newExpiry := instance.ExpiresAt.Add(time.Duration(req.Days) * 24 * time.Hour)
	maxExpiry := instance.CreatedAt.Add(time.Duration(s.config.Expiry.MaxDays) * 24 * time.Hour)
	if newExpiry.After(maxExpiry) {
		return nil, utils.ErrorExpiryCapExceeded
	}

	instance.ExpiresAt = newExpiry
	if err := s.instanceRepo.Update(ctx, instance); err != nil {
		return nil, err
	}

	s.events.Record(event.TypeInstanceExtended, actorFor(caller), entityId(id), map[string]any{
		"expiresAt": newExpiry.Format(time.RFC3339),
	})

	return lo.ToPtr(toInstanceOut(instance)), nil
}

func (s *instanceService) GetAccess(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*AccessOut, error) {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	hostname := fmt.Sprintf("%s.%s", instance.Name, s.config.Dns.Domain)

	return &AccessOut{
		GatewayUrl:  fmt.Sprintf("https://%s/?token=%s", hostname, instance.GatewayToken),
		TerminalUrl: fmt.Sprintf("wss://%s/terminal?token=%s", hostname, instance.TerminalToken),
	}, nil
}

func (s *instanceService) GetHealth(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*HealthOut, error) {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	health := &HealthOut{
		Status:           instance.Status,
		ProvisioningStep: instance.ProvisioningStep,
	}

	if instance.Ip != "" {
		probeUrl := fmt.Sprintf("http://%s:8080/health", instance.Ip)
		if request, err := http.NewRequestWithContext(ctx, http.MethodGet, probeUrl, nil); err == nil {
			if response, err := s.healthClient.Do(request); err == nil {
				response.Body.Close()
				health.Reachable = response.StatusCode < http.StatusInternalServerError
			}
		}
	}

	return health, nil
}

func (s *instanceService) GetEvents(ctx context.Context, id int64, caller auth.AuthenticatedCaller) ([]event.EventOut, error) {
	if _, err := s.getOwned(ctx, id, caller); err != nil {
		return nil, err
	}

	return s.events.GetForInstance(ctx, strconv.FormatInt(id, 10), eventHistoryLimit)
}

func (s *instanceService) Withdraw(ctx context.Context, id int64, req WithdrawIn, caller auth.AuthenticatedCaller) (string, error) {
	instance, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return "", err
	}
	if instance.Status != StatusRunning {
		return "", utils.ErrorInstanceNotRunning
	}

	rootPassword, err := s.cipher.Decrypt(instance.RootPassword)
	if err != nil {
		log.Errorf("[SSH] Failed to decrypt root credential of instance %d: %s", id, err.Error())
		return "", utils.ErrorSessionFailed
	}

	signature, err := s.bridge.Withdraw(ctx, instance.Ip, rootPassword, req.Destination, req.Amount)
	if err != nil {
		log.Errorf("[SSH] Withdrawal from instance %d failed: %s", id, err.Error())
		return "", utils.ErrorSessionFailed
	}

	return signature, nil
}

func (s *instanceService) ReportStep(ctx context.Context, req StepIn) error {
	step := ProvisioningStep(req.Step)
	if !IsValidStep(step) {
		return utils.ErrorValidationError
	}

	matched, err := s.instanceRepo.UpdateStep(ctx, req.Id, req.Token, step)
	if err != nil {
		return err
	}
	if !matched {
		// Wrong id, consumed token or a finished provisioning cycle all look
		// the same from outside: not found, never a silent success.
		return utils.ErrorInstanceNotFound
	}

	s.events.Record(event.TypeStepReported, event.ActorVm(strconv.FormatInt(req.Id, 10)), entityId(req.Id), map[string]any{
		"step": req.Step,
	})

	return nil
}

func (s *instanceService) HandleCallback(ctx context.Context, req CallbackIn) error {
	matched, err := s.instanceRepo.ConsumeCallback(ctx, req.Id, req.Token, req.VmWallet, req.GatewayToken)
	if err != nil {
		return err
	}
	if !matched {
		return utils.ErrorInstanceNotFound
	}

	s.events.Record(event.TypeCallbackReceived, event.ActorVm(strconv.FormatInt(req.Id, 10)), entityId(req.Id), map[string]any{
		"vmWallet": req.VmWallet,
	})

	instance, err := s.instanceRepo.GetById(ctx, req.Id)
	if err != nil {
		return err
	}

	// Funding and minting run detached: the VM gets its response immediately
	// and discovers the outcome by polling.
	go s.finalizeMint(context.Background(), instance)

	return nil
}

func (s *instanceService) GetBootConfig(ctx context.Context, id int64, token string) (*ConfigOut, error) {
	instance, err := s.instanceRepo.GetByCallbackToken(ctx, id, token)
	if err != nil {
		return nil, err
	}

	bootConfig := &ConfigOut{
		ApiUrl:              s.config.Server.PublicBaseUrl,
		Name:                instance.Name,
		TelegramBotUsername: instance.TelegramBotUsername,
	}

	if instance.TelegramBotToken != nil {
		decrypted, err := s.cipher.Decrypt(*instance.TelegramBotToken)
		if err != nil {
			log.Errorf("[VM] Failed to decrypt bot token of instance %d: %s", id, err.Error())
		} else {
			bootConfig.TelegramBotToken = &decrypted
		}
	}

	return bootConfig, nil
}

func (s *instanceService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.instanceRepo.GetExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range expired {
		if err := s.instanceRepo.SetStatus(ctx, item.Id, StatusDeleting); err != nil {
			continue
		}

		s.teardown(ctx, &item)

		if err := s.instanceRepo.SetStatus(ctx, item.Id, StatusDeleted); err != nil {
			continue
		}
		if err := s.instanceRepo.Delete(ctx, &item); err != nil {
			continue
		}

		s.events.Record(event.TypeInstanceDeleted, event.ActorSystem, entityId(item.Id), map[string]any{
			"reason": "expired",
		})
		deleted++
	}

	return deleted, nil
}

func (s *instanceService) getOwned(ctx context.Context, id int64, caller auth.AuthenticatedCaller) (*Instance, error) {
	instance, err := s.instanceRepo.GetById(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.authManager.IsOwner(instance.OwnerWallet, caller) {
		return nil, utils.ErrorForbidden
	}

	return instance, nil
}

func actorFor(caller auth.AuthenticatedCaller) event.Actor {
	if caller.IsOperator {
		return event.ActorOperator()
	}

	return event.ActorWallet(caller.Wallet)
}

func entityId(id int64) string {
	return strconv.FormatInt(id, 10)
}

package instance

import (
	"agentboxBackend/auth"
	"agentboxBackend/utils"
	"strconv"

	"github.com/gin-gonic/gin"
)

type (
	Handler interface {
		Login(ctx *gin.Context)

		Create(ctx *gin.Context)
		GetAll(ctx *gin.Context)
		GetExpiring(ctx *gin.Context)
		GetById(ctx *gin.Context)
		Rename(ctx *gin.Context)
		UpdateAgent(ctx *gin.Context)
		Delete(ctx *gin.Context)
		RetryMint(ctx *gin.Context)
		Restart(ctx *gin.Context)
		Extend(ctx *gin.Context)
		GetAccess(ctx *gin.Context)
		GetHealth(ctx *gin.Context)
		GetEvents(ctx *gin.Context)
		Withdraw(ctx *gin.Context)
		Sync(ctx *gin.Context)

		ReportStep(ctx *gin.Context)
		Callback(ctx *gin.Context)
		BootConfig(ctx *gin.Context)
	}

	instanceHandler struct {
		instanceService Service
	}
)

func CreateHandler(instanceService Service) Handler {
	return &instanceHandler{
		instanceService: instanceService,
	}
}

// @Summary	Sign in with a wallet signature
// @Accept		json
// @Produce	json
// @Tags		instances
// @Success	200		{object}	utils.OkResponse[string]	"A bearer token for the wallet"
// @Failure	400		{object}	utils.ErrorResponse			"The signature was invalid or stale"
// @Param		request	body		auth.WalletLoginIn			true	"The signed login message"
// @Router		/instances/auth [post]
func (h *instanceHandler) Login(ctx *gin.Context) {
	payload := auth.WalletLoginIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	token, err := h.instanceService.Login(payload)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(token))
}

// @Summary	Create a new instance
// @Accept		json
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	201		{object}	utils.OkResponse[InstanceOut]
// @Failure	400		{object}	utils.ErrorResponse	"Invalid name or channel token"
// @Failure	401		{object}	utils.ErrorResponse	"The caller isn't authenticated"
// @Failure	502		{object}	utils.ErrorResponse	"The compute provider rejected the request"
// @Param		request	body		InstanceIn	true	"Creation parameters"
// @Router		/instances [post]
func (h *instanceHandler) Create(ctx *gin.Context) {
	payload := InstanceIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.Create(ctx, payload, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateCreatedResponse(result))
}

// @Summary	List instances owned by the caller (all instances for admins with ?all=true)
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[[]InstanceOut]
// @Failure	401	{object}	utils.ErrorResponse	"The caller isn't authenticated"
// @Router		/instances [get]
func (h *instanceHandler) GetAll(ctx *gin.Context) {
	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	includeAll := ctx.Query("all") == "true"

	result, err := h.instanceService.GetAll(ctx, includeAll, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	List instances expiring within the given number of days
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[[]InstanceOut]
// @Failure	400	{object}	utils.ErrorResponse	"The days parameter was invalid"
// @Param		days	query	int	true	"Number of days"
// @Router		/instances/expiring [get]
func (h *instanceHandler) GetExpiring(ctx *gin.Context) {
	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	includeAll := ctx.Query("all") == "true"

	days, err := strconv.ParseUint(ctx.DefaultQuery("days", "7"), 10, 32)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(utils.ErrorValidationError))
		return
	}

	result, err := h.instanceService.GetExpiring(ctx, uint(days), includeAll, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Get a specific instance
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[InstanceOut]
// @Failure	403	{object}	utils.ErrorResponse	"The caller doesn't own this instance"
// @Failure	404	{object}	utils.ErrorResponse	"The instance was not found"
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id} [get]
func (h *instanceHandler) GetById(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.GetById(ctx, id, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Rename an instance
// @Accept		json
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200		{object}	nil
// @Failure	400		{object}	utils.ErrorResponse	"The name was invalid or taken"
// @Param		id		path		int			true	"The instance id"
// @Param		request	body		RenameIn	true	"The new name"
// @Router		/instances/{id} [patch]
func (h *instanceHandler) Rename(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	payload := RenameIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	if err := h.instanceService.Rename(ctx, id, payload, caller); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

// @Summary	Update the agent identity metadata on a running instance
// @Accept		json
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200		{object}	nil
// @Failure	400		{object}	utils.ErrorResponse	"The instance is not running"
// @Failure	502		{object}	utils.ErrorResponse	"The remote session failed"
// @Param		id		path		int		true	"The instance id"
// @Param		request	body		AgentIn	true	"The metadata to push"
// @Router		/instances/{id}/agent [patch]
func (h *instanceHandler) UpdateAgent(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	payload := AgentIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	if err := h.instanceService.UpdateAgent(ctx, id, payload, caller); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

// @Summary	Delete an instance and tear down its VM and DNS record
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	nil
// @Failure	403	{object}	utils.ErrorResponse	"The caller doesn't own this instance"
// @Failure	404	{object}	utils.ErrorResponse	"The instance was not found"
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id} [delete]
func (h *instanceHandler) Delete(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	if err := h.instanceService.Delete(ctx, id, caller); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

// @Summary	Retry identity minting for an instance
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	nil
// @Failure	400	{object}	utils.ErrorResponse	"Already minted or no VM wallet reported"
// @Failure	409	{object}	utils.ErrorResponse	"A mint attempt is already in progress"
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id}/mint [post]
func (h *instanceHandler) RetryMint(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	if err := h.instanceService.RetryMint(ctx, id, caller); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

// @Summary	Reboot the instance VM
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	nil
// @Failure	502	{object}	utils.ErrorResponse	"The compute provider rejected the reboot"
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id}/restart [post]
func (h *instanceHandler) Restart(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	if err := h.instanceService.Restart(ctx, id, caller); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

// @Summary	Extend the instance lifetime, capped at 90 days after creation
// @Accept		json
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200		{object}	utils.OkResponse[InstanceOut]
// @Failure	400		{object}	utils.ErrorResponse	"The extension would exceed the lifetime cap"
// @Param		id		path		int			true	"The instance id"
// @Param		request	body		ExtendIn	true	"The number of days to add"
// @Router		/instances/{id}/extend [post]
func (h *instanceHandler) Extend(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	payload := ExtendIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.Extend(ctx, id, payload, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Get the connection URLs of an instance
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[AccessOut]
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id}/access [get]
func (h *instanceHandler) GetAccess(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.GetAccess(ctx, id, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Probe the liveness of an instance
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[HealthOut]
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id}/health [get]
func (h *instanceHandler) GetHealth(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.GetHealth(ctx, id, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	List recent audit events of an instance
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200	{object}	utils.OkResponse[[]event.EventOut]
// @Param		id	path	int	true	"The instance id"
// @Router		/instances/{id}/events [get]
func (h *instanceHandler) GetEvents(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.GetEvents(ctx, id, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Trigger a value transfer from the instance wallet
// @Accept		json
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200		{object}	utils.OkResponse[string]	"The transaction signature"
// @Failure	502		{object}	utils.ErrorResponse			"The remote session failed"
// @Param		id		path		int			true	"The instance id"
// @Param		request	body		WithdrawIn	true	"Destination and amount"
// @Router		/instances/{id}/withdraw [post]
func (h *instanceHandler) Withdraw(ctx *gin.Context) {
	id, ok := instanceId(ctx)
	if !ok {
		return
	}

	payload := WithdrawIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)
	result, err := h.instanceService.Withdraw(ctx, id, payload, caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// @Summary	Reconcile on-chain identity ownership with the stored rows
// @Produce	json
// @Tags		instances
// @Security	BearerAuth
// @Success	200		{object}	utils.OkResponse[SyncOut]
// @Failure	503		{object}	utils.ErrorResponse	"The chain backend is unavailable"
// @Param		wallet	query		string	false	"Reconcile on behalf of this wallet (admins only)"
// @Router		/instances/sync [post]
func (h *instanceHandler) Sync(ctx *gin.Context) {
	caller := ctx.MustGet("authCaller").(auth.AuthenticatedCaller)

	result, err := h.instanceService.Sync(ctx, ctx.Query("wallet"), caller)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

// The two callback endpoints and the boot-config fetch authenticate purely by
// knowledge of the single-use callback token.

func (h *instanceHandler) ReportStep(ctx *gin.Context) {
	payload := StepIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	if err := h.instanceService.ReportStep(ctx, payload); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

func (h *instanceHandler) Callback(ctx *gin.Context) {
	payload := CallbackIn{}
	if err := ctx.Bind(&payload); err != nil {
		ctx.JSON(utils.CreateValidationError(err))
		return
	}

	if err := h.instanceService.HandleCallback(ctx, payload); err != nil {
		ctx.JSON(utils.CreateErrorResponse(err))
		return
	}

	ctx.JSON(utils.CreateOkResponse[any](nil))
}

func (h *instanceHandler) BootConfig(ctx *gin.Context) {
	id, err := strconv.ParseInt(ctx.Query("id"), 10, 64)
	token := ctx.Query("token")
	if err != nil || token == "" {
		ctx.JSON(utils.CreateErrorResponse(utils.ErrorValidationError))
		return
	}

	result, serviceErr := h.instanceService.GetBootConfig(ctx, id, token)
	if serviceErr != nil {
		ctx.JSON(utils.CreateErrorResponse(serviceErr))
		return
	}

	ctx.JSON(utils.CreateOkResponse(result))
}

func instanceId(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(utils.CreateErrorResponse(utils.ErrorValidationError))
		return 0, false
	}

	return id, true
}

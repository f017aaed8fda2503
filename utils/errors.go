package utils

import "errors"

// Request validation
var ErrorInvalidName = errors.New("the instance name must be 3-63 lowercase alphanumeric characters or hyphens")
var ErrorNameAllocation = errors.New("failed to allocate a free instance name")
var ErrorNameTaken = errors.New("an active instance with this name already exists")
var ErrorInvalidChannelToken = errors.New("the provided bot token was rejected by the channel provider")
var ErrorInvalidCredentials = errors.New("the credentials provided were invalid")
var ErrorExpiryCapExceeded = errors.New("the instance lifetime cannot exceed 90 days from creation")
var ErrorMintAlreadyDone = errors.New("the instance identity has already been minted")
var ErrorMissingVmWallet = errors.New("the instance has not reported a wallet yet")
var ErrorValidationError = errors.New("the data provided was invalid")

// Auth / permissions
var ErrorUnauthorized = errors.New("authentication is required")
var ErrorTokenInvalid = errors.New("the provided access token is not valid")
var ErrorForbidden = errors.New("access to this instance was denied")

// State
var ErrorInstanceNotFound = errors.New("the specified instance was not found")
var ErrorMintInProgress = errors.New("a mint attempt is already in progress")
var ErrorInstanceNotRunning = errors.New("the instance is not in a running state")

// Upstream / internal
var ErrorVmProvider = errors.New("the compute provider rejected the request")
var ErrorVmCapacity = errors.New("no compute capacity available in any configured location")
var ErrorUpstreamUnavailable = errors.New("a required upstream provider is not available")
var ErrorSessionFailed = errors.New("the remote session could not be completed")
var ErrorDatabaseError = errors.New("there was a problem accessing the database")
var ErrorServer = errors.New("there was a problem processing the request")

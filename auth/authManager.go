package auth

import (
	"agentboxBackend/config"
	"agentboxBackend/utils"
	"crypto/rand"
	"crypto/subtle"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type (
	AuthManager interface {
		LoginWallet(req WalletLoginIn) (string, error)
		AuthenticateCaller(tokenString string) (*AuthenticatedCaller, error)
		CreateAccessToken(wallet string) (string, error)
		AuthenticatorMiddleware() gin.HandlerFunc
		IsAdmin(caller AuthenticatedCaller) bool
		IsOwner(ownerWallet string, caller AuthenticatedCaller) bool
	}

	authManager struct {
		config        *config.AgentboxConfig
		operatorToken string
		jwtSecret     []byte
	}

	// AuthenticatedCaller is either the operator (exact secret match) or a
	// wallet that signed in with a message signature.
	AuthenticatedCaller struct {
		Wallet     string
		IsOperator bool
	}

	WalletLoginIn struct {
		Wallet    string `json:"wallet" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
)

const accessTokenLifetime = time.Hour * 24

func CreateAuthManager(config *config.AgentboxConfig) AuthManager {
	operatorToken := os.Getenv("AB_OPERATOR_TOKEN")
	if operatorToken == "" {
		log.Warn("[AUTH] No operator token configured, operator access is disabled!")
	}

	jwtSecret := ([]byte)(os.Getenv("AB_JWT_SECRET"))
	if len(jwtSecret) == 0 {
		// Tokens won't survive a restart without a configured secret.
		jwtSecret = ([]byte)(rand.Text())
	}

	return &authManager{
		config:        config,
		operatorToken: operatorToken,
		jwtSecret:     jwtSecret,
	}
}

// LoginWallet verifies a signed login message and issues an access token for
// the wallet. The message has to embed the wallet address and a "ts:" line
// with a recent unix timestamp so a captured message cannot be replayed later.
func (m *authManager) LoginWallet(req WalletLoginIn) (string, error) {
	signature, err := hexutil.Decode(req.Signature)
	if err != nil || len(signature) != 65 {
		return "", utils.ErrorInvalidCredentials
	}

	// Normalize the recovery id, wallets commonly use 27/28
	if signature[64] >= 27 {
		signature[64] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(([]byte)(req.Message)), signature)
	if err != nil {
		return "", utils.ErrorInvalidCredentials
	}

	claimed := common.HexToAddress(req.Wallet)
	if crypto.PubkeyToAddress(*pubkey) != claimed {
		return "", utils.ErrorInvalidCredentials
	}

	if !strings.Contains(strings.ToLower(req.Message), strings.ToLower(claimed.Hex())) {
		return "", utils.ErrorInvalidCredentials
	}

	if !m.isMessageFresh(req.Message) {
		return "", utils.ErrorInvalidCredentials
	}

	return m.CreateAccessToken(claimed.Hex())
}

func (m *authManager) isMessageFresh(message string) bool {
	window := int64(m.config.Auth.LoginWindowSeconds)

	for _, line := range strings.Split(message, "\n") {
		value, found := strings.CutPrefix(strings.TrimSpace(line), "ts:")
		if !found {
			continue
		}

		timestamp, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return false
		}

		now := time.Now().Unix()
		return now-timestamp <= window && timestamp-now <= 60
	}

	return false
}

func (m *authManager) AuthenticateCaller(tokenString string) (*AuthenticatedCaller, error) {
	if m.operatorToken != "" &&
		subtle.ConstantTimeCompare(([]byte)(tokenString), ([]byte)(m.operatorToken)) == 1 {
		return &AuthenticatedCaller{IsOperator: true}, nil
	}

	token, err := jwt.Parse(tokenString, m.tokenParser)
	if err != nil {
		return nil, utils.ErrorTokenInvalid
	}

	wallet, err := token.Claims.GetSubject()
	if err != nil || wallet == "" {
		return nil, utils.ErrorTokenInvalid
	}

	return &AuthenticatedCaller{Wallet: wallet}, nil
}

func (m *authManager) CreateAccessToken(wallet string) (string, error) {
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": wallet,
		"nbf": time.Now().Unix(),
		"exp": time.Now().Add(accessTokenLifetime).Unix(),
	})

	return accessToken.SignedString(m.jwtSecret)
}

func (m *authManager) AuthenticatorMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		bearer, found := strings.CutPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if !found || bearer == "" {
			ctx.JSON(utils.CreateErrorResponse(utils.ErrorUnauthorized))
			ctx.Abort()
			return
		}

		if caller, err := m.AuthenticateCaller(bearer); err != nil {
			ctx.JSON(utils.CreateErrorResponse(err))
			ctx.Abort()
		} else {
			ctx.Set("authCaller", *caller)
			ctx.Next()
		}
	}
}

func (m *authManager) IsAdmin(caller AuthenticatedCaller) bool {
	if caller.IsOperator {
		return true
	}

	treasury := m.config.Auth.TreasuryWallet
	return treasury != "" && sameWallet(caller.Wallet, treasury)
}

func (m *authManager) IsOwner(ownerWallet string, caller AuthenticatedCaller) bool {
	return m.IsAdmin(caller) || sameWallet(ownerWallet, caller.Wallet)
}

func (m *authManager) tokenParser(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, utils.ErrorTokenInvalid
	}

	return m.jwtSecret, nil
}

func sameWallet(a string, b string) bool {
	if a == "" || b == "" {
		return false
	}

	return common.HexToAddress(a) == common.HexToAddress(b)
}

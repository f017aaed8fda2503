package deployment

import (
	"agentboxBackend/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// hetznerProvider talks to a Hetzner-style cloud REST API. A 412 response on
// server creation means the location is out of capacity.
type hetznerProvider struct {
	apiUrl     string
	apiToken   string
	httpClient *http.Client
}

func CreateHetznerProvider(config *config.AgentboxConfig) VmProvider {
	apiToken := os.Getenv("AB_COMPUTE_TOKEN")
	if apiToken == "" {
		log.Warn("[VM] No compute API token configured, instance creation will fail!")
	}

	return &hetznerProvider{
		apiUrl:     config.Compute.ApiUrl,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type (
	serverEnvelope struct {
		Server       apiServer `json:"server"`
		RootPassword string    `json:"root_password"`
	}

	apiServer struct {
		Id        int64  `json:"id"`
		Status    string `json:"status"`
		PublicNet struct {
			Ipv4 struct {
				Ip string `json:"ip"`
			} `json:"ipv4"`
		} `json:"public_net"`
	}

	apiError struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

func (p *hetznerProvider) Create(ctx context.Context, request CreateRequest) (*Server, error) {
	payload := map[string]any{
		"name":        request.Name,
		"server_type": request.ServerType,
		"image":       request.SnapshotId,
		"location":    request.Location,
		"user_data":   request.UserData,
	}

	body, status, err := p.call(ctx, http.MethodPost, "/servers", payload)
	if err != nil {
		return nil, err
	}

	if status == http.StatusPreconditionFailed {
		return nil, ErrLocationCapacity
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, p.decodeError(body, status)
	}

	var envelope serverEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode server response: %w", err)
	}

	return &Server{
		Id:           envelope.Server.Id,
		Ip:           envelope.Server.PublicNet.Ipv4.Ip,
		RootPassword: envelope.RootPassword,
		Status:       envelope.Server.Status,
	}, nil
}

func (p *hetznerProvider) Get(ctx context.Context, serverId int64) (*Server, error) {
	body, status, err := p.call(ctx, http.MethodGet, fmt.Sprintf("/servers/%d", serverId), nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		return nil, ErrServerNotFound
	}
	if status != http.StatusOK {
		return nil, p.decodeError(body, status)
	}

	var envelope serverEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode server response: %w", err)
	}

	return &Server{
		Id:     envelope.Server.Id,
		Ip:     envelope.Server.PublicNet.Ipv4.Ip,
		Status: envelope.Server.Status,
	}, nil
}

func (p *hetznerProvider) Delete(ctx context.Context, serverId int64) error {
	body, status, err := p.call(ctx, http.MethodDelete, fmt.Sprintf("/servers/%d", serverId), nil)
	if err != nil {
		return err
	}

	// Deleting an unknown server counts as success, teardown has to stay
	// idempotent for the reaper.
	if status == http.StatusNotFound {
		return nil
	}
	if status >= http.StatusBadRequest {
		return p.decodeError(body, status)
	}

	return nil
}

func (p *hetznerProvider) Reboot(ctx context.Context, serverId int64) error {
	body, status, err := p.call(ctx, http.MethodPost, fmt.Sprintf("/servers/%d/actions/reboot", serverId), map[string]any{})
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		return ErrServerNotFound
	}
	if status >= http.StatusBadRequest {
		return p.decodeError(body, status)
	}

	return nil
}

func (p *hetznerProvider) call(ctx context.Context, method string, path string, payload any) ([]byte, int, error) {
	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, p.apiUrl+path, requestBody)
	if err != nil {
		return nil, 0, err
	}

	request.Header.Set("Authorization", "Bearer "+p.apiToken)
	request.Header.Set("Content-Type", "application/json")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, 0, err
	}

	return body, response.StatusCode, nil
}

func (p *hetznerProvider) decodeError(body []byte, status int) error {
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Code != "" {
		if decoded.Error.Code == "resource_unavailable" {
			return ErrLocationCapacity
		}
		return fmt.Errorf("compute API error %s: %s", decoded.Error.Code, decoded.Error.Message)
	}

	return fmt.Errorf("compute API returned unexpected status %d", status)
}

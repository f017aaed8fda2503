// Package dns attaches and removes A records for instances against a
// Cloudflare-style zone API. DNS is best-effort everywhere it is used: an
// unreachable zone never fails provisioning or teardown.
package dns

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

type (
	Client interface {
		CreateRecord(ctx context.Context, hostname string, ip string) error
		DeleteRecord(ctx context.Context, hostname string) error
	}

	dnsClient struct {
		apiUrl     string
		apiToken   string
		zoneId     string
		httpClient *http.Client
	}

	recordEnvelope struct {
		Success bool `json:"success"`
		Result  []struct {
			Id string `json:"id"`
		} `json:"result"`
	}
)

func CreateClient(config *config.AgentboxConfig) Client {
	apiToken := os.Getenv("AB_DNS_TOKEN")
	if apiToken == "" {
		log.Warn("[DNS] No DNS API token configured, records will not be managed!")
	}

	return &dnsClient{
		apiUrl:     config.Dns.ApiUrl,
		apiToken:   apiToken,
		zoneId:     config.Dns.ZoneId,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *dnsClient) CreateRecord(ctx context.Context, hostname string, ip string) error {
	payload := map[string]any{
		"type":    "A",
		"name":    hostname,
		"content": ip,
		"ttl":     300,
		"proxied": false,
	}

	path := fmt.Sprintf("/zones/%s/dns_records", c.zoneId)
	if _, err := c.call(ctx, http.MethodPost, path, payload); err != nil {
		return fmt.Errorf("failed to create A record for %s: %w", hostname, err)
	}

	return nil
}

func (c *dnsClient) DeleteRecord(ctx context.Context, hostname string) error {
	path := fmt.Sprintf("/zones/%s/dns_records?type=A&name=%s", c.zoneId, hostname)
	body, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("failed to look up A record for %s: %w", hostname, err)
	}

	var envelope recordEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode record list: %w", err)
	}

	// No record counts as already deleted.
	for _, record := range envelope.Result {
		deletePath := fmt.Sprintf("/zones/%s/dns_records/%s", c.zoneId, record.Id)
		if _, err := c.call(ctx, http.MethodDelete, deletePath, nil); err != nil {
			return fmt.Errorf("failed to delete A record for %s: %w", hostname, err)
		}
	}

	return nil
}

func (c *dnsClient) call(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.apiUrl+path, requestBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Authorization", "Bearer "+c.apiToken)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	if response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("DNS API returned status %d", response.StatusCode)
	}

	return body, nil
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"strapmon/models"

	"go.uber.org/zap"
)

const userAgent = "strapmon-dashboard/1.0"

// RESTClient talks to the strap server's HTTP API. It is both the default
// snapshot source and the control client.
type RESTClient struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// NewRESTClient creates a client for the server at apiURL
func NewRESTClient(apiURL string, httpClient *http.Client, logger *zap.Logger) *RESTClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTClient{
		logger:     logger,
		apiURL:     apiURL,
		httpClient: httpClient,
	}
}

// FetchDevices loads the full device roster
func (c *RESTClient) FetchDevices(ctx context.Context) ([]models.Device, error) {
	var body struct {
		Devices []map[string]interface{} `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/devices", nil, &body); err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(body.Devices))
	for i, raw := range body.Devices {
		devices = append(devices, models.DeviceFromPayload(models.Payload(raw), i))
	}
	c.logger.Debug("Fetched device roster", zap.Int("count", len(devices)))
	return devices, nil
}

// FetchEmployees loads the employee directory
func (c *RESTClient) FetchEmployees(ctx context.Context) ([]models.Employee, error) {
	var body struct {
		Employees []map[string]interface{} `json:"employees"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/employees", nil, &body); err != nil {
		return nil, err
	}

	employees := make([]models.Employee, 0, len(body.Employees))
	for _, raw := range body.Employees {
		employees = append(employees, models.EmployeeFromPayload(models.Payload(raw)))
	}
	return employees, nil
}

// FetchPolicy loads the stored wear policy
func (c *RESTClient) FetchPolicy(ctx context.Context) (models.WearPolicy, error) {
	var body map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/api/policy/wear", nil, &body); err != nil {
		return models.WearPolicy{}, err
	}
	return models.WearPolicyFromPayload(models.Payload(body)), nil
}

// PushPolicy saves the policy and starts the broadcast to connected straps
func (c *RESTClient) PushPolicy(ctx context.Context, policy models.WearPolicy) (PushReceipt, error) {
	var body map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/api/policy/wear", policy, &body); err != nil {
		return PushReceipt{}, err
	}

	p := models.Payload(body)
	if success := p.OptionalBool("success"); success != nil && !*success {
		return PushReceipt{}, fmt.Errorf("%w: %s", ErrPolicyRejected, p.String("error"))
	}

	receipt := PushReceipt{
		Policy:  policy,
		Targets: max(p.IntOr("targets", 0), 0),
	}
	if stored := p.Object("policy"); stored != nil {
		receipt.Policy = models.WearPolicyFromPayload(stored)
	}
	return receipt, nil
}

// DeleteDevice unregisters a device
func (c *RESTClient) DeleteDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/api/devices/"+url.PathEscape(deviceID), nil, nil)
}

func (c *RESTClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	endpoint := c.apiURL + path

	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Request to strap server failed",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return ErrDeviceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Strap server returned error",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

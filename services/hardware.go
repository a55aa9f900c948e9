package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"strapmon/models"

	"go.uber.org/zap"
)

// HardwareAlertService drives a site alarm (buzzer, tower light) through its
// HTTP controller
type HardwareAlertService struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// HardwareAlertPayload represents the payload sent to hardware alert API
type HardwareAlertPayload struct {
	DeviceID     string    `json:"device_id,omitempty"`
	EmployeeName string    `json:"employee_name,omitempty"`
	Severity     string    `json:"severity"`
	AlertType    string    `json:"alert_type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewHardwareAlertService creates a new hardware alert service
func NewHardwareAlertService(logger *zap.Logger, apiURL string) *HardwareAlertService {
	return &HardwareAlertService{
		logger: logger,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name implements AlertTarget
func (h *HardwareAlertService) Name() string {
	return "hardware"
}

// SendAlert posts the notification to the alarm controller
func (h *HardwareAlertService) SendAlert(n models.Notification) error {
	payload := HardwareAlertPayload{
		DeviceID:  n.DeviceID,
		Severity:  hardwareSeverity(n.Type),
		AlertType: "strap_" + string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.CreatedAt,
	}
	if n.Employee != nil {
		payload.EmployeeName = n.Employee.Name
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/hardware-alert", h.apiURL)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Info("Hardware alert sent successfully",
			zap.String("device_id", n.DeviceID),
			zap.String("severity", payload.Severity),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	return fmt.Errorf("%w: hardware alert API: %s", ErrRequestFailed, resp.Status)
}

// hardwareSeverity maps a notification severity onto the alarm levels
func hardwareSeverity(s models.Severity) string {
	switch s {
	case models.SeverityDanger:
		return "critical"
	case models.SeverityWarning:
		return "high"
	case models.SeverityInfo:
		return "medium"
	default:
		return "low"
	}
}

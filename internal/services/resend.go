package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"museum-ticketing-platform/internal/config"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends email via the Resend API
type ResendMailer struct {
	config   config.ResendConfig
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

// NewResendMailer creates a new Resend mailer
func NewResendMailer(cfg config.ResendConfig, logger *logrus.Logger) *ResendMailer {
	return &ResendMailer{
		config:   cfg,
		endpoint: resendEndpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ResendEmailRequest represents the request structure for Resend API
type ResendEmailRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html,omitempty"`
	Text        string             `json:"text,omitempty"`
	Tags        []ResendTag        `json:"tags,omitempty"`
	Attachments []ResendAttachment `json:"attachments,omitempty"`
}

// ResendTag represents a tag for email categorization
type ResendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ResendAttachment carries base64 file content
type ResendAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// ResendEmailResponse represents the response from Resend API
type ResendEmailResponse struct {
	ID string `json:"id"`
}

// ResendErrorResponse represents error response from Resend API
type ResendErrorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// getFromField constructs the from field properly
func (s *ResendMailer) getFromField() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}
	return s.config.FromEmail
}

func (s *ResendMailer) buildRequest(msg *EmailMessage) ResendEmailRequest {
	request := ResendEmailRequest{
		From:    s.getFromField(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}

	names := make([]string, 0, len(msg.Tags))
	for name := range msg.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		request.Tags = append(request.Tags, ResendTag{Name: name, Value: msg.Tags[name]})
	}

	for _, a := range msg.Attachments {
		request.Attachments = append(request.Attachments, ResendAttachment{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}
	return request
}

// Send delivers one message via the Resend API
func (s *ResendMailer) Send(ctx context.Context, msg *EmailMessage) error {
	jsonData, err := json.Marshal(s.buildRequest(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorResp ResendErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Message == "" {
			return fmt.Errorf("failed to send email, status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to send email: %s", errorResp.Message)
	}

	var response ResendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"to":        msg.To,
		"resend_id": response.ID,
	}).Info("Email sent via Resend")
	return nil
}

// Package client talks to the chat server the way the dashboards do: plain
// HTTP for state changes, a relay stream for push, and periodic refetches
// that keep local state correct when pushes are lost.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"support-chat-backend/internal/dto"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout     = 15 * time.Second
	anonymousHeader    = "X-Anonymous-Token"
	relaySessionHeader = "X-Relay-Session"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type errorBody struct {
	Message string `json:"message"`
}

// API is a thin typed wrapper over the REST surface. Copies made by AsAdmin
// and AsVisitor share the underlying connection pool.
type API struct {
	http           *resty.Client
	baseURL        string
	adminToken     string
	anonymousToken string
	relaySession   func() string
}

func NewAPI(baseURL string) *API {
	baseURL = strings.TrimRight(baseURL, "/")
	return &API{
		http: resty.New().
			SetBaseURL(baseURL+"/api").
			SetTimeout(defaultTimeout).
			SetHeader("Accept", "application/json"),
		baseURL: baseURL,
	}
}

// AsAdmin returns a copy that authenticates with an admin JWT.
func (a *API) AsAdmin(token string) *API {
	cp := *a
	cp.adminToken = token
	cp.anonymousToken = ""
	return &cp
}

// AsVisitor returns a copy that authenticates with an anonymous token.
func (a *API) AsVisitor(token string) *API {
	cp := *a
	cp.adminToken = ""
	cp.anonymousToken = token
	return &cp
}

// WithRelaySession tags message posts with the caller's relay session so
// the server skips echoing them back on the conversation room.
func (a *API) WithRelaySession(sessionID func() string) *API {
	cp := *a
	cp.relaySession = sessionID
	return &cp
}

func (a *API) IsAdmin() bool {
	return a.adminToken != ""
}

func (a *API) AnonymousToken() string {
	return a.anonymousToken
}

// StreamURL is the websocket endpoint for this server.
func (a *API) StreamURL() string {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	if a.adminToken != "" {
		u.RawQuery = url.Values{"token": {a.adminToken}}.Encode()
	}
	return u.String()
}

func (a *API) request(ctx context.Context) *resty.Request {
	req := a.http.R().SetContext(ctx).SetError(&errorBody{})
	if a.adminToken != "" {
		req.SetAuthToken(a.adminToken)
	}
	if a.anonymousToken != "" {
		req.SetHeader(anonymousHeader, a.anonymousToken)
	}
	if a.relaySession != nil {
		if id := a.relaySession(); id != "" {
			req.SetHeader(relaySessionHeader, id)
		}
	}
	return req
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("chat api: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	message := http.StatusText(resp.StatusCode())
	if body, ok := resp.Error().(*errorBody); ok && body.Message != "" {
		message = body.Message
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: message}
}

func (a *API) Login(ctx context.Context, email, password string) (dto.LoginResponse, error) {
	var out dto.LoginResponse
	err := check(a.request(ctx).
		SetBody(dto.LoginRequest{Email: email, Password: password}).
		SetResult(&out).
		Post("/auth/admin/login"))
	return out, err
}

func (a *API) StartConversation(ctx context.Context, organizationID string) (dto.StartConversationResponse, error) {
	var out dto.StartConversationResponse
	err := check(a.request(ctx).
		SetBody(dto.StartConversationRequest{OrganizationID: organizationID}).
		SetResult(&out).
		Post("/chat/conversations/start"))
	return out, err
}

func (a *API) ResumeConversation(ctx context.Context, anonymousToken string) (dto.ResumeConversationResponse, error) {
	var out dto.ResumeConversationResponse
	err := check(a.request(ctx).
		SetBody(dto.ResumeConversationRequest{AnonymousToken: anonymousToken}).
		SetResult(&out).
		Post("/chat/conversations/resume"))
	return out, err
}

func (a *API) ListConversations(ctx context.Context) ([]dto.ConversationResponse, error) {
	var out dto.ListConversationsResponse
	if err := check(a.request(ctx).SetResult(&out).Get("/chat/conversations")); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (a *API) ListMessages(ctx context.Context, conversationID string) ([]dto.MessageResponse, error) {
	var out dto.ListMessagesResponse
	err := check(a.request(ctx).
		SetPathParam("id", conversationID).
		SetResult(&out).
		Get("/chat/conversations/{id}/messages"))
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *API) PostMessage(ctx context.Context, conversationID, content string) (dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := check(a.request(ctx).
		SetPathParam("id", conversationID).
		SetBody(dto.PostMessageRequest{
			Content:        content,
			IsAdminMessage: a.IsAdmin(),
			AnonymousToken: a.anonymousToken,
		}).
		SetResult(&out).
		Post("/chat/conversations/{id}/messages"))
	return out, err
}

func (a *API) MarkConversationRead(ctx context.Context, conversationID string) (dto.MarkConversationReadResponse, error) {
	var out dto.MarkConversationReadResponse
	err := check(a.request(ctx).
		SetPathParam("id", conversationID).
		SetResult(&out).
		Put("/chat/conversations/{id}/mark-read"))
	return out, err
}

func (a *API) MarkMessageRead(ctx context.Context, messageID string) (dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := check(a.request(ctx).
		SetPathParam("id", messageID).
		SetBody(dto.MarkMessageReadRequest{AnonymousToken: a.anonymousToken}).
		SetResult(&out).
		Put("/chat/messages/{id}/read"))
	return out, err
}

func (a *API) CloseConversation(ctx context.Context, conversationID string) (dto.ConversationResponse, error) {
	var out dto.ConversationResponse
	err := check(a.request(ctx).
		SetPathParam("id", conversationID).
		SetResult(&out).
		Put("/chat/conversations/{id}/close"))
	return out, err
}

// FileUpload describes one attachment.
type FileUpload struct {
	Name        string
	ContentType string
	Body        io.Reader
	MessageType string
}

func (a *API) Upload(ctx context.Context, conversationID string, file FileUpload) (dto.UploadResponse, error) {
	var out dto.UploadResponse
	fields := map[string]string{
		"conversationId": conversationID,
		"isAdminMessage": strconv.FormatBool(a.IsAdmin()),
	}
	if a.anonymousToken != "" {
		fields["anonymousToken"] = a.anonymousToken
	}
	if file.MessageType != "" {
		fields["messageType"] = file.MessageType
	}
	err := check(a.request(ctx).
		SetMultipartFormData(fields).
		SetMultipartField("file", file.Name, file.ContentType, file.Body).
		SetResult(&out).
		Post("/uploads/upload"))
	return out, err
}

package endpoints

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/relay/event"
)

func multipartUpload(t *testing.T, fields map[string]string, fileName, contentType string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(content)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestUploadCreatesMediaMessage(t *testing.T) {
	f := setupChatFixture(t)
	started := startConversation(t, f)

	req := multipartUpload(t, map[string]string{
		"conversationId": started.ConversationID,
		"anonymousToken": started.AnonymousToken,
		"isAdminMessage": "false",
	}, "receipt.png", "image/png", []byte("\x89PNG fake image"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message.MessageType != "image" || resp.Message.Content != "receipt.png" || resp.Message.FileName != "receipt.png" {
		t.Fatalf("unexpected message %+v", resp.Message)
	}
	if !strings.HasPrefix(resp.FileURL, "/api/uploads/files/file-") || !strings.HasSuffix(resp.FileURL, ".png") {
		t.Fatalf("unexpected file url %q", resp.FileURL)
	}

	updates := f.broker.events(t)[event.AdminRoom("1")]
	last, ok := updates[len(updates)-1].(event.ConversationUpdated)
	if !ok || last.LastMessage != "Sent a image" || last.UnreadCount != 1 {
		t.Fatalf("unexpected admin update %+v", updates[len(updates)-1])
	}

	download := httptest.NewRecorder()
	f.handler.ServeHTTP(download, httptest.NewRequest(http.MethodGet, resp.FileURL, nil))
	if download.Code != http.StatusOK {
		t.Fatalf("expected 200 download, got %d", download.Code)
	}
	if download.Header().Get("X-Content-Type-Options") != "nosniff" ||
		download.Header().Get("Content-Security-Policy") != "default-src 'none'" ||
		download.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Fatalf("missing hardening headers: %v", download.Header())
	}
	if download.Body.String() != "\x89PNG fake image" {
		t.Fatalf("unexpected file body %q", download.Body.String())
	}
}

func TestUploadServesCheckedContentType(t *testing.T) {
	f := setupChatFixture(t)
	started := startConversation(t, f)

	req := multipartUpload(t, map[string]string{
		"conversationId": started.ConversationID,
		"anonymousToken": started.AnonymousToken,
	}, "invoice.html", "image/png", []byte("<script>alert(1)</script>"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(resp.FileURL, ".png") {
		t.Fatalf("expected extension from checked type, got %q", resp.FileURL)
	}
	if resp.Message.FileName != "invoice.html" {
		t.Fatalf("expected original file name kept for display, got %q", resp.Message.FileName)
	}

	download := httptest.NewRecorder()
	f.handler.ServeHTTP(download, httptest.NewRequest(http.MethodGet, resp.FileURL, nil))
	if got := download.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
}

func TestUploadRejectionsLeaveNoFile(t *testing.T) {
	f := setupChatFixture(t)
	started := startConversation(t, f)
	other := startConversation(t, f)

	cases := []struct {
		name        string
		fields      map[string]string
		fileName    string
		contentType string
		content     []byte
		status      int
		message     string
	}{
		{
			name:        "too large",
			fields:      map[string]string{"conversationId": started.ConversationID, "anonymousToken": started.AnonymousToken},
			fileName:    "big.pdf",
			contentType: "application/pdf",
			content:     bytes.Repeat([]byte("a"), testMaxUpload+1),
			status:      http.StatusBadRequest,
			message:     "File too large",
		},
		{
			name:        "disallowed type",
			fields:      map[string]string{"conversationId": started.ConversationID, "anonymousToken": started.AnonymousToken},
			fileName:    "script.html",
			contentType: "text/html",
			content:     []byte("<script>"),
			status:      http.StatusBadRequest,
		},
		{
			name:        "foreign conversation",
			fields:      map[string]string{"conversationId": started.ConversationID, "anonymousToken": other.AnonymousToken},
			fileName:    "photo.jpg",
			contentType: "image/jpeg",
			content:     []byte("jpeg"),
			status:      http.StatusForbidden,
		},
		{
			name:        "missing conversation",
			fields:      map[string]string{"conversationId": "missing", "anonymousToken": started.AnonymousToken},
			fileName:    "photo.jpg",
			contentType: "image/jpeg",
			content:     []byte("jpeg"),
			status:      http.StatusNotFound,
		},
		{
			name:   "no file",
			fields: map[string]string{"conversationId": started.ConversationID, "anonymousToken": started.AnonymousToken},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, multipartUpload(t, tc.fields, tc.fileName, tc.contentType, tc.content))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.message != "" && !strings.Contains(rec.Body.String(), tc.message) {
				t.Fatalf("expected %q in %s", tc.message, rec.Body.String())
			}
			if files := storedFiles(t, f.uploadDir); len(files) != 0 {
				t.Fatalf("rejected upload left files behind: %v", files)
			}
		})
	}

	messages, err := f.repo.ListMessages(t.Context(), started.ConversationID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("rejected uploads must not create messages, got %d", len(messages))
	}
}

func TestServeFileMissing(t *testing.T) {
	f := setupChatFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/files/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

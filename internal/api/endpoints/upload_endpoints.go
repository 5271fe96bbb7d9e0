package endpoints

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay"
	conversationservice "support-chat-backend/internal/service/conversation"
	"support-chat-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

// multipartOverhead is the slack allowed on top of the file for form fields
// and part headers.
const multipartOverhead = 1 << 20

type UploadEndpoints interface {
	Upload(http.ResponseWriter, *http.Request) error
	Files(http.ResponseWriter, *http.Request) error
}

type uploadEndpoints struct {
	service  *conversationservice.Service
	emitter  *relay.Emitter
	files    storage.FileStore
	maxBytes int64
	prefix   string
}

func NewUploadEndpoints(service *conversationservice.Service, emitter *relay.Emitter, files storage.FileStore, maxBytes int64, prefix string) UploadEndpoints {
	return &uploadEndpoints{
		service:  service,
		emitter:  emitter,
		files:    files,
		maxBytes: maxBytes,
		prefix:   strings.TrimRight(prefix, "/") + "/uploads/files/",
	}
}

func (h *uploadEndpoints) Upload(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleUpload,
	})
}

func (h *uploadEndpoints) Files(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleFile,
		http.MethodHead: h.handleFile,
	})
}

type uploadForm struct {
	fields   map[string]string
	object   storage.Object
	original string
	stored   bool
}

func (f *uploadForm) field(name string) string {
	return strings.TrimSpace(f.fields[name])
}

func tooLarge(err error) error {
	return &HTTPError{StatusCode: http.StatusBadRequest, Message: "File too large", ErrorLog: err}
}

func (h *uploadEndpoints) handleUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	form, err := h.readForm(r)
	if form.stored && err != nil {
		h.discard(r.Context(), form.object.Name)
	}
	if err != nil {
		return err
	}
	if !form.stored {
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "No file uploaded", ErrorLog: fmt.Errorf("upload without file part")}
	}

	message, err := h.attach(r, form)
	if err != nil {
		h.discard(r.Context(), form.object.Name)
		return err
	}

	return WriteJSON(w, http.StatusCreated, dto.UploadResponse{
		Message: dto.NewMessageResponse(message),
		FileURL: storage.PublicURL(form.object.Name),
	})
}

// readForm streams the multipart body. The file part is written to the store
// as soon as it arrives; the remaining fields are collected for validation.
func (h *uploadEndpoints) readForm(r *http.Request) (*uploadForm, error) {
	form := &uploadForm{fields: make(map[string]string)}

	reader, err := r.MultipartReader()
	if err != nil {
		return form, &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid multipart payload", ErrorLog: err}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return form, tooLarge(err)
			}
			return form, &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid multipart payload", ErrorLog: err}
		}

		if part.FormName() == "file" && part.FileName() != "" {
			if form.stored {
				part.Close()
				return form, &HTTPError{StatusCode: http.StatusBadRequest, Message: "Only one file per upload", ErrorLog: fmt.Errorf("second file part %q", part.FileName())}
			}
			if err := h.store(r.Context(), form, part); err != nil {
				part.Close()
				return form, err
			}
			part.Close()
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, 4096))
		part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return form, tooLarge(err)
			}
			return form, &HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid multipart payload", ErrorLog: err}
		}
		form.fields[part.FormName()] = string(value)
	}
}

func (h *uploadEndpoints) store(ctx context.Context, form *uploadForm, part *multipart.Part) error {
	contentType := part.Header.Get("Content-Type")
	if !storage.Allowed(contentType) {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid file type. Only images, videos, audio, and documents are allowed.",
			ErrorLog:   fmt.Errorf("%w: %s", storage.ErrUnsupportedType, contentType),
		}
	}

	name := storage.ObjectName(contentType)
	object, err := h.files.Save(ctx, name, contentType, part, h.maxBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.Is(err, storage.ErrTooLarge) || errors.As(err, &maxErr) {
			return tooLarge(err)
		}
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Failed to store file", ErrorLog: err}
	}

	form.object = object
	form.original = part.FileName()
	form.stored = true
	return nil
}

// attach validates the target conversation and records the media message.
func (h *uploadEndpoints) attach(r *http.Request, form *uploadForm) (model.MessageItem, error) {
	fromAdmin, _ := strconv.ParseBool(form.field("isAdminMessage"))

	caller, err := resolveCaller(h.service, r, form.field("anonymousToken"))
	if err != nil {
		return model.MessageItem{}, err
	}

	conversationID := form.field("conversationId")
	if _, err := h.service.CheckUploadTarget(r.Context(), caller, conversationID, fromAdmin); err != nil {
		return model.MessageItem{}, serviceError(err)
	}

	messageType := model.MessageType(form.field("messageType"))
	if messageType == "" || messageType == model.MessageTypeText || !messageType.Valid() {
		messageType = model.MessageTypeForMIME(form.object.ContentType)
	}

	result, err := h.service.PostMessage(r.Context(), caller, conversationservice.PostMessageParams{
		ConversationID: conversationID,
		Content:        form.original,
		FromAdmin:      fromAdmin,
		MessageType:    messageType,
		MediaURL:       storage.PublicURL(form.object.Name),
		FileName:       form.original,
		FileSize:       form.object.Size,
		MimeType:       form.object.ContentType,
	})
	if err != nil {
		return model.MessageItem{}, serviceError(err)
	}

	if h.emitter != nil {
		h.emitter.MessageCreated(context.WithoutCancel(r.Context()), result, strings.TrimSpace(r.Header.Get(relaySessionHeader)))
	}
	return result.Message, nil
}

func (h *uploadEndpoints) discard(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := h.files.Remove(context.WithoutCancel(ctx), name); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("failed to remove rejected upload")
	}
}

func (h *uploadEndpoints) handleFile(w http.ResponseWriter, r *http.Request) error {
	name := strings.TrimPrefix(r.URL.Path, h.prefix)
	if name == r.URL.Path || name == "" {
		return notFound(r.URL.Path)
	}

	body, object, err := h.files.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			return &HTTPError{StatusCode: http.StatusNotFound, Message: "File not found", ErrorLog: err}
		}
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Failed to read file", ErrorLog: err}
	}
	defer body.Close()

	header := w.Header()
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Content-Security-Policy", "default-src 'none'")
	header.Set("Cache-Control", "public, max-age=86400")
	if object.ContentType != "" {
		header.Set("Content-Type", object.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	if object.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Debug().Err(err).Str("file", name).Msg("file download interrupted")
	}
	return nil
}

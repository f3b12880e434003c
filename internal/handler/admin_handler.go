package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
	"linknote-server/internal/middleware"
	"linknote-server/internal/service"
	"linknote-server/pkg/response"
)

const maxBulkBytes = 8 << 20

type AdminHandler struct {
	records  *service.RecordService
	bulk     *service.BulkService
	validate *validator.Validate
	logger   logging.Logger
}

func NewAdminHandler(records *service.RecordService, bulk *service.BulkService, logger logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AdminHandler{
		records:  records,
		bulk:     bulk,
		validate: service.NewValidator(),
		logger:   logger,
	}
}

func (h *AdminHandler) ExportBulk(w http.ResponseWriter, r *http.Request) {
	text, err := h.bulk.Export(r.Context())
	if err != nil {
		h.logger.Error("bulk export failed", "error", err)
		response.InternalError(w)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	response.Text(w, http.StatusOK, text)
}

func (h *AdminHandler) readDocument(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBulkBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Document too large")
			return "", false
		}
		response.BadRequest(w, "Failed to read document")
		return "", false
	}
	return string(body), true
}

func (h *AdminHandler) SaveBulk(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	result, err := h.bulk.Save(r.Context(), middleware.GetAdminIdentity(r), text)
	if err != nil {
		var rejected *service.BulkRejectedError
		if errors.As(err, &rejected) {
			response.UnprocessableEntity(w, rejected.Result)
			return
		}
		h.logger.Error("bulk save failed", "error", err)
		response.InternalError(w)
		return
	}

	response.Success(w, result)
}

func (h *AdminHandler) PreviewBulk(w http.ResponseWriter, r *http.Request) {
	text, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	preview, err := h.bulk.Preview(r.Context(), text)
	if err != nil {
		h.logger.Error("bulk preview failed", "error", err)
		response.InternalError(w)
		return
	}

	response.Success(w, preview)
}

func (h *AdminHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.List(r.Context())
	if err != nil {
		h.logger.Error("list records failed", "error", err)
		response.InternalError(w)
		return
	}
	response.Success(w, records)
}

func (h *AdminHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	record, err := h.records.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			response.NotFound(w, "Record not found")
			return
		}
		h.logger.Error("get record failed", "key", key, "error", err)
		response.InternalError(w)
		return
	}
	response.Success(w, record)
}

func (h *AdminHandler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req domain.SaveRecordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBulkBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	record, err := h.records.Save(r.Context(), middleware.GetAdminIdentity(r), key, &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			response.JSON(w, http.StatusBadRequest, map[string][]string{"errors": verr.Messages})
			return
		}
		h.logger.Error("save record failed", "key", key, "error", err)
		response.InternalError(w)
		return
	}
	response.Success(w, record)
}

func (h *AdminHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := h.records.Delete(r.Context(), middleware.GetAdminIdentity(r), key); err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			response.NotFound(w, "Record not found")
			return
		}
		h.logger.Error("delete record failed", "key", key, "error", err)
		response.InternalError(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package operator

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/saga"
)

const defaultListLimit = 100

type CompensateRequest struct {
	Reason string `json:"reason"`
}

type ScanResult struct {
	Moved []string `json:"moved"`
}

type Handler struct {
	service Service
	logger  log.Logger
}

func NewHandler(service Service, logger log.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ResyncOrder(resp http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.service.ResyncOrder(r.Context(), orderID); err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(map[string]string{"orderId": orderID, "status": "resynced"}, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) ResyncAll(resp http.ResponseWriter, r *http.Request) {
	result, err := h.service.ResyncAll(r.Context())
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(result, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) ConsistencyReport(resp http.ResponseWriter, r *http.Request) {
	report, err := h.service.ConsistencyReport(r.Context())
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(report, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) Repair(resp http.ResponseWriter, r *http.Request) {
	result, err := h.service.Repair(r.Context())
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(result, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) GetSaga(resp http.ResponseWriter, r *http.Request) {
	inst, err := h.service.GetSaga(r.Context(), chi.URLParam(r, "sagaID"))
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(inst, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) ListSagas(resp http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Get("status") == "" {
		NewResponseWriterFromErrMsg("Query param 'status' must be specified", http.StatusBadRequest).write(resp, h.logger)
		return
	}

	status, err := saga.ParseStatus(query.Get("status"))
	if err != nil {
		NewResponseWriterFromError(NewResponseError(http.StatusBadRequest, err)).write(resp, h.logger)
		return
	}

	limit, err := h.getInt(query, "limit")
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	if limit == nil {
		l := defaultListLimit
		limit = &l
	}

	instances, err := h.service.ListSagas(r.Context(), status, *limit)
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	if instances == nil {
		instances = []*saga.Instance{}
	}

	NewResponseWriter(instances, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) CompensateSaga(resp http.ResponseWriter, r *http.Request) {
	req := CompensateRequest{}

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			NewResponseWriterFromError(NewResponseError(http.StatusBadRequest, errors.Wrap(err, "decoding request"))).write(resp, h.logger)
			return
		}
	}

	inst, err := h.service.CompensateSaga(r.Context(), chi.URLParam(r, "sagaID"), req.Reason)
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	NewResponseWriter(inst, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) ScanTimeouts(resp http.ResponseWriter, r *http.Request) {
	moved, err := h.service.ScanTimeouts(r.Context())
	if err != nil {
		NewResponseWriterFromError(err).write(resp, h.logger)
		return
	}

	if moved == nil {
		moved = []string{}
	}

	NewResponseWriter(ScanResult{Moved: moved}, http.StatusOK).write(resp, h.logger)
}

func (h *Handler) getInt(values url.Values, paramName string) (*int, error) {
	paramValue := values.Get(paramName)
	if paramValue != "" {
		intValue, err := strconv.Atoi(paramValue)
		if err != nil || intValue < 1 {
			return nil, NewResponseError(http.StatusBadRequest, errors.Errorf("Query parameter '%s' is expected to be a positive integer", paramName))
		}

		return &intValue, nil
	}

	return nil, nil
}

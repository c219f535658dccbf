package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/core-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/core-ledger/internal/shared"
)

// IntegrityScanEnqueuer schedules an asynchronous integrity scan for a tenant
// and returns the queued task id.
type IntegrityScanEnqueuer interface {
	EnqueueIntegrityScan(ctx context.Context, tenantID string) (string, error)
}

// Handler exposes the chart of accounts over JSON HTTP.
type Handler struct {
	logger    *slog.Logger
	factory   *Factory
	scans     IntegrityScanEnqueuer
	validator *validator.Validate
}

// NewHandler constructs a Handler. scans may be nil when no queue is configured.
func NewHandler(logger *slog.Logger, factory *Factory, scans IntegrityScanEnqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Handler{logger: logger, factory: factory, scans: scans, validator: v}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/hierarchy", h.hierarchy)
	r.Get("/code/{code}", h.getByCode)
	r.Post("/reparent", h.reparent)
	r.Post("/reparent/validate", h.validateReparent)
	r.Post("/integrity-scan", h.integrityScan)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.archive)
		r.Get("/children", h.children)
	})
}

type searchQuery struct {
	Q            string `json:"q" validate:"max=255"`
	AccountType  string `json:"accountType" validate:"omitempty,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	Currency     string `json:"currency" validate:"omitempty,iso4217"`
	IsActive     string `json:"isActive" validate:"omitempty,boolean"`
	AllowPosting string `json:"allowPosting" validate:"omitempty,boolean"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	query := searchQuery{
		Q:            values.Get("q"),
		AccountType:  values.Get("accountType"),
		Currency:     values.Get("currency"),
		IsActive:     values.Get("isActive"),
		AllowPosting: values.Get("allowPosting"),
	}
	if err := h.validate(query); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var filters SearchFilters
	if query.AccountType != "" {
		t := AccountType(query.AccountType)
		filters.AccountType = &t
	}
	if query.Currency != "" {
		filters.Currency = &query.Currency
	}
	filters.IsActive = parseOptionalBool(query.IsActive)
	filters.AllowPosting = parseOptionalBool(query.AllowPosting)

	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	accounts, err := svc.SearchAccounts(r.Context(), query.Q, filters)
	if err != nil {
		h.fail(w, r, "search accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "Invalid JSON body", "")
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	account, err := svc.CreateAccount(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	resp, err := svc.GetAccountHierarchy(r.Context())
	if err != nil {
		h.fail(w, r, "account hierarchy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	account, err := svc.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) getByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.BadRequest(w, "Account code is required", "code")
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	account, err := svc.GetAccountByCode(r.Context(), code)
	if err != nil {
		h.fail(w, r, "get account by code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	children, err := svc.GetAccountChildren(r.Context(), id)
	if err != nil {
		h.fail(w, r, "account children", err)
		return
	}
	httpx.JSON(w, http.StatusOK, children)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "Invalid JSON body", "")
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	account, err := svc.UpdateAccount(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	if err := svc.ArchiveAccount(r.Context(), id); err != nil {
		h.fail(w, r, "archive account", err)
		return
	}
	httpx.NoContent(w, http.StatusNoContent)
}

func (h *Handler) reparent(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeReparent(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	account, err := svc.ReparentAccount(r.Context(), req.AccountID, req.NewParentID.Value)
	if err != nil {
		h.fail(w, r, "reparent account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) validateReparent(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeReparent(w, r)
	if !ok {
		return
	}
	svc, ok := h.service(w, r)
	if !ok {
		return
	}
	result, err := svc.ValidateReparent(r.Context(), req.AccountID, req.NewParentID.Value)
	if err != nil {
		h.fail(w, r, "validate reparent", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) integrityScan(w http.ResponseWriter, r *http.Request) {
	tc, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingTenant)
		return
	}
	if h.scans == nil {
		httpx.JSON(w, http.StatusServiceUnavailable, httpx.ErrorBody{
			Error:   "Service Unavailable",
			Message: "Background queue is not configured",
		})
		return
	}
	taskID, err := h.scans.EnqueueIntegrityScan(r.Context(), tc.TenantID)
	if err != nil {
		h.fail(w, r, "enqueue integrity scan", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID, "tenantId": tc.TenantID})
}

func (h *Handler) decodeReparent(w http.ResponseWriter, r *http.Request) (ReparentRequest, bool) {
	var req ReparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "Invalid JSON body", "")
		return req, false
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	if !req.NewParentID.Set {
		httpx.BadRequest(w, "newParentId is required (use null to make the account a root)", "newParentId")
		return req, false
	}
	if p := req.NewParentID.Value; p != nil && *p <= 0 {
		httpx.BadRequest(w, "newParentId must be a positive integer or null", "newParentId")
		return req, false
	}
	return req, true
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request) (*Service, bool) {
	tc, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrMissingTenant)
		return nil, false
	}
	svc, err := h.factory.ForTenant(tc)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return svc, true
}

// validate runs struct tag validation and reports the first failure as a
// ValidationError keyed by the JSON field name.
func (h *Handler) validate(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewValidationError(validationMessage(fe), fe.Field())
	}
	return shared.NewValidationError("Invalid request", "")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be a positive integer"
	case "oneof":
		return fe.Field() + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "len":
		return fe.Field() + " must be " + fe.Param() + " characters"
	case "iso4217":
		return fe.Field() + " must be a valid ISO 4217 currency code"
	case "boolean":
		return fe.Field() + " must be true or false"
	case "max":
		return fe.Field() + " must not exceed " + fe.Param() + " characters"
	}
	return fe.Field() + " is invalid"
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, "Account id must be a positive integer", "id")
		return 0, false
	}
	return id, true
}

func parseOptionalBool(raw string) *bool {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

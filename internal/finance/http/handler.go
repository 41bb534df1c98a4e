package financehttp

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/tutorly/tutorly/internal/finance"
	"github.com/tutorly/tutorly/internal/platform/httpx"
)

// Service is the subset of finance.Service served over HTTP.
type Service interface {
	TeacherStudyGroupFinance(ctx context.Context, q finance.TeacherFinanceQuery) (finance.TeacherFinance, error)
	MonthlySummary(ctx context.Context, q finance.MonthlySummaryQuery) (finance.MonthlySummary, error)
	RecordSessionFinance(ctx context.Context, sessionID int64) (finance.RecordedFinance, error)
	RecordAttendance(ctx context.Context, sessionID int64, records []finance.AttendanceRecord) error
	UpdateSessionStatus(ctx context.Context, sessionID int64, status finance.SessionStatus) error
}

// PayslipRenderer converts a teacher finance into a PDF document.
type PayslipRenderer interface {
	RenderPayslip(ctx context.Context, tf finance.TeacherFinance, tag language.Tag) ([]byte, error)
}

// Handler wires finance and session JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
	payslips  PayslipRenderer
}

// NewHandler constructs handler. Exports and recomputations are limited to
// writeLimit requests per minute per client IP; zero disables the limiter.
func NewHandler(logger *slog.Logger, service Service, writeLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if writeLimit > 0 {
		limiter = httprate.Limit(writeLimit, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				return "ip:" + r.RemoteAddr, nil
			}
			return "ip:" + host, nil
		}))
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		rateLimit: limiter,
	}
}

// WithPayslips enables the PDF export route.
func (h *Handler) WithPayslips(renderer PayslipRenderer) *Handler {
	h.payslips = renderer
	return h
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/finances", func(r chi.Router) {
		r.Get("/teacher/{teacherID}/studygroup/{studyGroupID}", h.teacherFinance)
		r.Get("/monthly-summary", h.monthlySummary)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Get("/teacher/{teacherID}/studygroup/{studyGroupID}/export.csv", h.exportTeacherFinance)
			if h.payslips != nil {
				r.Get("/teacher/{teacherID}/studygroup/{studyGroupID}/export.pdf", h.exportPayslip)
			}
			r.Post("/calculate/{sessionID}", h.calculate)
		})
	})
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Put("/attendance", h.recordAttendance)
		r.Patch("/status", h.updateStatus)
	})
}

func (h *Handler) teacherFinance(w http.ResponseWriter, r *http.Request) {
	q, err := h.teacherQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.TeacherStudyGroupFinance(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) exportTeacherFinance(w http.ResponseWriter, r *http.Request) {
	q, err := h.teacherQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.TeacherStudyGroupFinance(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filename := fmt.Sprintf("finance_teacher_%d_group_%d.csv", q.TeacherID, q.StudyGroupID)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	writer := csv.NewWriter(w)
	for _, row := range finance.ExportRows(result, exportLanguage(r)) {
		if err := writer.Write(row); err != nil {
			h.logger.Warn("write finance csv", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
}

func (h *Handler) exportPayslip(w http.ResponseWriter, r *http.Request) {
	q, err := h.teacherQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.TeacherStudyGroupFinance(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pdf, err := h.payslips.RenderPayslip(r.Context(), result, exportLanguage(r))
	if err != nil {
		h.logger.Error("render payslip", slog.Int64("teacher_id", q.TeacherID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "payslip rendering unavailable")
		return
	}
	filename := fmt.Sprintf("payslip_teacher_%d_group_%d.pdf", q.TeacherID, q.StudyGroupID)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type summaryQuery struct {
	Month *int `validate:"required,min=1,max=12"`
	Year  *int `validate:"required,min=1900,max=9999"`
}

func (h *Handler) monthlySummary(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	month, err := optionalInt(values.Get("month"), "month")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	year, err := optionalInt(values.Get("year"), "year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if month == nil || year == nil {
		h.fail(w, r, fmt.Errorf("%w: month and year are required", finance.ErrInvalidArgument))
		return
	}
	if err := h.validate(summaryQuery{Month: month, Year: year}); err != nil {
		h.fail(w, r, err)
		return
	}
	includeDetails, err := optionalBool(values.Get("include_details"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.service.MonthlySummary(r.Context(), finance.MonthlySummaryQuery{
		Month:          *month,
		Year:           *year,
		IncludeDetails: includeDetails,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.RecordSessionFinance(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type attendanceRequest struct {
	Attendance []attendanceItem `json:"attendance" validate:"required,dive"`
}

type attendanceItem struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Status    string `json:"status" validate:"required,oneof=present absent absent_verified"`
}

func (h *Handler) recordAttendance(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req attendanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed body: %v", finance.ErrInvalidArgument, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	records := make([]finance.AttendanceRecord, 0, len(req.Attendance))
	for _, item := range req.Attendance {
		records = append(records, finance.AttendanceRecord{StudentID: item.StudentID, Status: finance.AttendanceStatus(item.Status)})
	}
	if err := h.service.RecordAttendance(r.Context(), sessionID, records); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress completed"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed body: %v", finance.ErrInvalidArgument, err))
		return
	}
	if err := h.validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.UpdateSessionStatus(r.Context(), sessionID, finance.SessionStatus(req.Status)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) teacherQuery(r *http.Request) (finance.TeacherFinanceQuery, error) {
	teacherID, err := pathID(r, "teacherID")
	if err != nil {
		return finance.TeacherFinanceQuery{}, err
	}
	studyGroupID, err := pathID(r, "studyGroupID")
	if err != nil {
		return finance.TeacherFinanceQuery{}, err
	}
	period, err := h.parsePeriod(r)
	if err != nil {
		return finance.TeacherFinanceQuery{}, err
	}
	return finance.TeacherFinanceQuery{TeacherID: teacherID, StudyGroupID: studyGroupID, Period: period}, nil
}

type periodQuery struct {
	Month *int `validate:"omitempty,min=1,max=12"`
	Year  *int `validate:"omitempty,min=1900,max=9999"`
}

// parsePeriod accepts either month and year, or start_date and end_date, or nothing.
func (h *Handler) parsePeriod(r *http.Request) (finance.Period, error) {
	values := r.URL.Query()
	month, err := optionalInt(values.Get("month"), "month")
	if err != nil {
		return finance.Period{}, err
	}
	year, err := optionalInt(values.Get("year"), "year")
	if err != nil {
		return finance.Period{}, err
	}
	rawStart := strings.TrimSpace(values.Get("start_date"))
	rawEnd := strings.TrimSpace(values.Get("end_date"))

	hasMonth := month != nil || year != nil
	hasRange := rawStart != "" || rawEnd != ""
	switch {
	case hasMonth && hasRange:
		return finance.Period{}, fmt.Errorf("%w: use either month and year or start_date and end_date", finance.ErrInvalidArgument)
	case hasMonth:
		if month == nil || year == nil {
			return finance.Period{}, fmt.Errorf("%w: month and year must be given together", finance.ErrInvalidArgument)
		}
		if err := h.validate(periodQuery{Month: month, Year: year}); err != nil {
			return finance.Period{}, err
		}
		return finance.InMonth(*month, *year)
	case hasRange:
		if rawStart == "" || rawEnd == "" {
			return finance.Period{}, fmt.Errorf("%w: start_date and end_date must be given together", finance.ErrInvalidArgument)
		}
		start, err := parseDate(rawStart, false)
		if err != nil {
			return finance.Period{}, err
		}
		end, err := parseDate(rawEnd, true)
		if err != nil {
			return finance.Period{}, err
		}
		return finance.Between(start, end)
	default:
		return finance.AllTime(), nil
	}
}

// parseDate reads YYYY-MM-DD or RFC3339. A plain end date covers its whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if endOfDay {
			return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", finance.ErrInvalidArgument, raw)
	}
	return t.UTC(), nil
}

func (h *Handler) validate(v any) error {
	if err := h.validator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", finance.ErrInvalidArgument, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", finance.ErrInvalidArgument, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error("finance request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", finance.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func optionalInt(raw, name string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer, got %q", finance.ErrInvalidArgument, name, raw)
	}
	return &v, nil
}

func optionalBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: include_details must be a boolean, got %q", finance.ErrInvalidArgument, raw)
	}
	return v, nil
}

var exportMatcher = language.NewMatcher([]language.Tag{language.English, language.French, language.Arabic})

// exportLanguage picks the export number format from ?lang= or Accept-Language.
func exportLanguage(r *http.Request) language.Tag {
	tag, _ := language.MatchStrings(exportMatcher, r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
	return tag
}

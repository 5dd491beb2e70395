package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog"
	"nutrilog/confirm"
	"nutrilog/export"
	"nutrilog/resolve"
)

type itemFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type mealResponse struct {
	RequestID string                   `json:"request_id"`
	State     confirm.State            `json:"state"`
	Entries   []nutrilog.ResolvedEntry `json:"entries"`
	ExpiresAt time.Time                `json:"expires_at,omitzero"`
	Failures  []itemFailure            `json:"failures,omitempty"`
}

func (s *Server) mealText(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	// a description that names a saved preset stages the preset as is
	preset, found, err := s.store.GetPreset(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	if found {
		s.stageEntries(c, "", preset.Entries, nil)
		return
	}

	res, err := s.resolver.ResolveText(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	s.stage(c, res)
}

func (s *Server) mealPhoto(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.resolver.ResolvePhoto(c.Request.Context(), image)
	if err != nil {
		writeError(c, err)
		return
	}
	s.stage(c, res)
}

// readImage accepts a multipart "image" field or a raw request body.
func readImage(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, errors.New("image is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLimited(f)
	}
	return readLimited(c.Request.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image is required")
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("image too large")
	}
	return data, nil
}

// stage puts the stageable entries up for confirmation. Items whose nutrition
// could not be determined are staged and also listed as failures.
func (s *Server) stage(c *gin.Context, res resolve.Resolution) {
	s.stageEntries(c, res.RequestID, res.Entries(), failuresOf(res))
}

func failuresOf(res resolve.Resolution) []itemFailure {
	var out []itemFailure
	for _, f := range res.Failures() {
		out = append(out, itemFailure{Name: f.Candidate.Name, Error: f.Err.Error()})
	}
	return out
}

func (s *Server) stageEntries(c *gin.Context, requestID string, entries []nutrilog.ResolvedEntry, failures []itemFailure) {
	resp := mealResponse{RequestID: requestID, Failures: failures}
	if len(entries) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "no valid food items",
			"request_id": requestID,
			"failures":   failures,
		})
		return
	}

	tr, err := s.confirm.Stage(c.Request.Context(), c.Param("user"), entries)
	if err != nil {
		writeError(c, err)
		return
	}
	resp.State = tr.State
	resp.Entries = tr.Entries
	resp.ExpiresAt = tr.ExpiresAt
	c.JSON(http.StatusOK, resp)
}

func (s *Server) pending(c *gin.Context) {
	c.JSON(http.StatusOK, s.confirm.Status(c.Param("user")))
}

func (s *Server) adjustQuantity(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}
	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity is required"})
		return
	}

	tr, err := s.confirm.AdjustQuantity(c.Request.Context(), c.Param("user"), index, req.Quantity)
	if err != nil {
		writeTransitionError(c, tr, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) confirmPending(c *gin.Context) {
	tr, err := s.confirm.Confirm(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeTransitionError(c, tr, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) cancelPending(c *gin.Context) {
	tr, err := s.confirm.Cancel(c.Request.Context(), c.Param("user"))
	if err != nil {
		writeTransitionError(c, tr, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) daySummary(c *gin.Context) {
	day, ok := s.dateParam(c, "date")
	if !ok {
		return
	}
	sum, err := s.reports.DailySummary(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": sum, "incomplete": sum.Incomplete()})
}

func (s *Server) dayBalance(c *gin.Context) {
	day, ok := s.dateParam(c, "date")
	if !ok {
		return
	}
	rep, err := s.reports.Reconcile(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":     rep.Summary,
		"expenditure": rep.Expenditure,
		"balance":     rep.Balance,
		"text":        rep.Text(),
	})
}

func (s *Server) dayEntries(c *gin.Context) {
	day, ok := s.dateParam(c, "date")
	if !ok {
		return
	}
	entries, err := s.store.Entries(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format(time.DateOnly), "entries": entries})
}

func (s *Server) undoLast(c *gin.Context) {
	day, ok := s.dateParam(c, "date")
	if !ok {
		return
	}
	removed, found, err := s.store.DeleteMostRecentEntry(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no entries on " + day.Format(time.DateOnly)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": removed})
}

func (s *Server) weekAverage(c *gin.Context) {
	end, ok := s.dateParam(c, "end")
	if !ok {
		return
	}
	avg, err := s.reports.WeeklyAverage(c.Request.Context(), end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avg)
}

// exportRange reads the optional days and end query parameters.
func (s *Server) exportRange(c *gin.Context) (end time.Time, days int, ok bool) {
	days = 90
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 3660 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 3660"})
			return end, 0, false
		}
		days = n
	}
	end = s.today()
	if v := c.Query("end"); v != "" {
		d, err := s.parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return end, 0, false
		}
		end = d
	}
	return end, days, true
}

func (s *Server) exportCSV(c *gin.Context) {
	end, days, ok := s.exportRange(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	name, _, err := s.reports.Export(c.Request.Context(), &buf, end, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// saveExport writes the CSV for the requested range to the export sink.
func (s *Server) saveExport(c *gin.Context) {
	end, days, ok := s.exportRange(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	name, rows, err := s.reports.Export(c.Request.Context(), &buf, end, days)
	if err != nil {
		writeError(c, err)
		return
	}
	location, err := s.exports.Save(c.Request.Context(), name, buf.Bytes())
	if err != nil {
		writeError(c, err)
		return
	}
	slog.Info("HTTP: Export saved", "name", name, "location", location, "rows", rows)
	c.JSON(http.StatusCreated, gin.H{"name": name, "location": location, "rows": rows})
}

func (s *Server) loadExport(c *gin.Context) {
	name := c.Param("name")
	data, err := s.exports.Load(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (s *Server) today() time.Time {
	return nutrilog.Day(s.now(), s.loc)
}

// parseDate accepts YYYY-MM-DD or "today" in the configured time zone.
func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "today" {
		return s.today(), nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return d, nil
}

func (s *Server) dateParam(c *gin.Context, name string) (time.Time, bool) {
	d, err := s.parseDate(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, false
	}
	return d, true
}

func statusFor(err error) (int, string) {
	var (
		perr *nutrilog.ParseFormatError
		verr *nutrilog.ValidationError
	)
	switch {
	case errors.Is(err, nutrilog.ErrNoResult):
		return http.StatusUnprocessableEntity, "no_result"
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity, "parse_format"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, nutrilog.ErrNoPendingConfirmation):
		return http.StatusConflict, "no_pending_confirmation"
	case errors.Is(err, nutrilog.ErrEmptyBatch):
		return http.StatusUnprocessableEntity, "empty_batch"
	case errors.Is(err, export.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func writeTransitionError(c *gin.Context, tr confirm.Transition, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code, "state": tr.State, "entries": tr.Entries})
}

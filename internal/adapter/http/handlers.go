package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/couchcryptid/field-trial-form/internal/domain"
	"github.com/couchcryptid/field-trial-form/internal/views"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := s.session(w, r)
	state, _ := s.deps.Sessions.Get(id)
	s.renderPage(w, http.StatusOK, state)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}
	input := domain.FormInput{
		Name:      r.PostFormValue("name"),
		StartDate: r.PostFormValue("start_date"),
		EndDate:   r.PostFormValue("end_date"),
		Postcode:  r.PostFormValue("postcode"),
		Weather:   r.PostFormValue("weather"),
	}
	if input.Weather != domain.WeatherYes {
		input.Weather = domain.WeatherNo
	}

	ctx := r.Context()
	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	id := s.session(w, r)
	state, ok := s.deps.Sessions.Update(id, func(st domain.SessionState) domain.SessionState {
		return s.deps.Form.Submit(ctx, st, input)
	})
	if !ok {
		http.Error(w, "session expired", http.StatusConflict)
		return
	}

	status := http.StatusOK
	if state.Validation != nil {
		status = http.StatusUnprocessableEntity
	}
	s.renderPage(w, status, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := s.session(w, r)
	s.deps.Sessions.Update(id, s.deps.Form.Reset)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleWeatherCSV(w http.ResponseWriter, r *http.Request) {
	id := s.session(w, r)
	state, _ := s.deps.Sessions.Get(id)
	if !state.HasWeather() {
		http.Error(w, "no weather data for this session", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := state.Weather.WriteCSV(&buf); err != nil {
		s.logger.Error("weather csv export failed", "error", err)
		http.Error(w, "failed to export weather data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", domain.CSVContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+domain.CSVFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	s.deps.Metrics.CSVExports.Inc()
}

// session returns the caller's session ID, starting a new session when the
// cookie is missing or stale.
func (s *Server) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && s.deps.Sessions.Exists(c.Value) {
		return c.Value
	}
	id := s.deps.Sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) renderPage(w http.ResponseWriter, status int, state domain.SessionState) {
	var buf bytes.Buffer
	if err := s.deps.Pages.RenderPage(&buf, views.NewPage(state)); err != nil {
		s.logger.Error("render page failed", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

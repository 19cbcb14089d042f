package api

import (
	"bytes"
	"log"
	"net/http"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/chart"
)

type IndexData struct {
	Form   FormValues
	Error  string
	Result *WindowsResponse
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := IndexData{Form: formValues(q)}
	status := http.StatusOK

	ev, err := s.evaluate(r, "web")
	if err != nil {
		data.Error = userMessage(err)
		if code := statusFor(err); code >= 500 {
			log.Printf("api: index evaluation failed: %v", err)
			status = code
		}
	} else {
		summary := s.narrator.Describe(r.Context(), ev)
		resp := buildWindowsResponse(ev, summary, q.Encode())
		data.Result = &resp
		s.prerenderCharts(ev, q.Encode())
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.Printf("api: render index: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) evaluate(r *http.Request, source string) (*advisor.Evaluation, error) {
	req, err := parseRequest(r.URL.Query(), source)
	if err != nil {
		return nil, err
	}
	return s.advisor.Evaluate(r.Context(), req)
}

// prerenderCharts fills the chart cache so the page's image requests do not
// trigger another evaluation.
func (s *Server) prerenderCharts(ev *advisor.Evaluation, rawQuery string) {
	for _, day := range ev.VisibleDays {
		data, err := chart.Render(chartInput(ev, day))
		if err != nil {
			log.Printf("api: render chart for %s: %v", day, err)
			continue
		}
		s.charts.Set(chartKey(dayDate(ev.Result, day), rawQuery), data)
	}
}

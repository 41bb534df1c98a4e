package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/tutorly/tutorly/internal/finance"
)

func sampleFinance() finance.TeacherFinance {
	date := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	session := finance.Session{
		ID:           42,
		Date:         date,
		StudyGroupID: 7,
		Attendance: []finance.AttendanceRecord{
			{StudentID: 1, Status: finance.StatusPresent},
			{StudentID: 2, Status: finance.StatusAbsent},
		},
		StudyGroup: finance.StudyGroup{ID: 7, TeacherID: 3},
	}
	q := finance.TeacherFinanceQuery{TeacherID: 3, StudyGroupID: 7, Period: finance.AllTime()}
	return finance.BuildTeacherFinance(q, []finance.Session{session}, finance.NewCalculator(finance.DefaultRatePolicy()))
}

func fakeGotenberg(t *testing.T, status int) (*httptest.Server, *[]byte) {
	t.Helper()
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(status)
		case "/forms/chromium/convert/html":
			file, header, err := r.FormFile("files")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			if header.Filename != "index.html" {
				http.Error(w, "index.html required", http.StatusBadRequest)
				return
			}
			received, _ = io.ReadAll(file)
			w.WriteHeader(status)
			_, _ = w.Write([]byte("%PDF-1.7"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestPayslipHTML(t *testing.T) {
	p := NewPayslips(nil)
	html, err := p.PayslipHTML(sampleFinance(), language.English)
	require.NoError(t, err)

	doc := string(html)
	assert.Contains(t, doc, `<html lang="en" dir="ltr">`)
	assert.Contains(t, doc, "Teacher 3, study group 7, 2024-03-05 to 2024-03-05")
	assert.Contains(t, doc, `<td class="amount">11.375</td>`)
	assert.Contains(t, doc, `<tr class="total"><td>total</td>`)
	assert.Contains(t, doc, "<th>Absent verified</th>")
}

func TestPayslipHTMLRightToLeft(t *testing.T) {
	html, err := NewPayslips(nil).PayslipHTML(sampleFinance(), language.Arabic)
	require.NoError(t, err)
	assert.Contains(t, string(html), `dir="rtl"`)
}

func TestRenderPayslip(t *testing.T) {
	srv, received := fakeGotenberg(t, http.StatusOK)
	p := NewPayslips(NewClient(srv.URL+"/", time.Second))

	pdf, err := p.RenderPayslip(context.Background(), sampleFinance(), language.English)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.True(t, strings.HasPrefix(string(*received), "<!DOCTYPE html>"))
}

func TestRenderPayslipUpstreamFailure(t *testing.T) {
	srv, _ := fakeGotenberg(t, http.StatusInternalServerError)
	client := NewClient(srv.URL, time.Second)

	_, err := NewPayslips(client).RenderPayslip(context.Background(), sampleFinance(), language.English)
	assert.ErrorContains(t, err, "status 500")
	assert.Error(t, client.Ping(context.Background()))
}

func TestPingHealthy(t *testing.T) {
	srv, _ := fakeGotenberg(t, http.StatusOK)
	assert.NoError(t, NewClient(srv.URL, 0).Ping(context.Background()))
}

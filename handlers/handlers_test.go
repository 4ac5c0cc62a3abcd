package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"postboard/apperr"

	"github.com/gin-gonic/gin"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		err  bool
	}{
		{"1990-05-17", time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), false},
		{"1990-05-17T08:30:00Z", time.Date(1990, 5, 17, 8, 30, 0, 0, time.UTC), false},
		{"", time.Time{}, false},
		{"17/05/1990", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.raw)
		if (err != nil) != tt.err {
			t.Errorf("parseDate(%q) error = %v", tt.raw, err)
			continue
		}
		if tt.err && !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("parseDate(%q) kind = %s", tt.raw, apperr.KindOf(err))
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limit := func(url string) (int, error) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", url, nil)
		return queryLimit(c)
	}

	if n, err := limit("/api/feed"); n != 0 || err != nil {
		t.Errorf("absent limit = %d, %v", n, err)
	}
	if n, err := limit("/api/feed?limit=7"); n != 7 || err != nil {
		t.Errorf("limit=7 gave %d, %v", n, err)
	}
	if _, err := limit("/api/feed?limit=seven"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("limit=seven gave %v", err)
	}
}

package handler

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestParseDate(t *testing.T) {
	parsed, err := parseDate("2026-01-14")
	if err != nil {
		t.Fatalf("parseDate returned error: %v", err)
	}
	if parsed.Year() != 2026 || parsed.Month() != time.January || parsed.Day() != 14 {
		t.Fatalf("unexpected parsed date: %v", parsed)
	}

	if _, err := parseDate("14/01/2026"); err == nil {
		t.Fatal("expected error for slash-separated date")
	}
	if _, err := parseDate("2026-13-40"); err == nil {
		t.Fatal("expected error for out-of-range date")
	}

	// 空串回退到今天
	fallback, err := parseDate("")
	if err != nil {
		t.Fatalf("parseDate returned error for empty input: %v", err)
	}
	if time.Since(fallback) > time.Minute {
		t.Fatalf("expected fallback near now, got %v", fallback)
	}
}

func TestFormatDatePtr(t *testing.T) {
	if got := formatDatePtr(nil); got != "" {
		t.Fatalf("expected empty string for nil date, got %q", got)
	}

	at := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	if got := formatDatePtr(&at); got != "2026-01-14" {
		t.Fatalf("expected 2026-01-14, got %q", got)
	}
}

func TestParseUintParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}

	id, err := parseUintParam(c, "id")
	if err != nil {
		t.Fatalf("parseUintParam returned error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}

	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	if _, err := parseUintParam(c, "id"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

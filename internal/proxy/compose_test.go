package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/resolver"
)

func TestCompose_Defaults(t *testing.T) {
	res := &resolver.Resolution{
		Selected:   &models.ResponseVariant{ID: "v1"},
		RulesCount: 3,
	}

	c, err := Compose(context.Background(), res)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if c.Status != 200 {
		t.Errorf("Expected status 200 for zero status, got %d", c.Status)
	}
	if string(c.Body) != "null" {
		t.Errorf("Expected null body, got %s", c.Body)
	}
	if c.Headers["Content-Type"] != "application/json" {
		t.Errorf("Expected default content type, got %q", c.Headers["Content-Type"])
	}
	if c.Headers[HeaderRulesCount] != "3" {
		t.Errorf("Expected rules count 3, got %q", c.Headers[HeaderRulesCount])
	}
	if _, ok := c.Headers[HeaderMatchedRule]; ok {
		t.Error("Expected no matched rule header")
	}
}

func TestCompose_VariantHeadersWin(t *testing.T) {
	res := &resolver.Resolution{
		Selected: &models.ResponseVariant{
			StatusCode: 201,
			Headers: map[string]string{
				"content-type":          "text/plain",
				"x-antbee-matched-rule": "custom",
			},
			Body: json.RawMessage(`"hi"`),
		},
		MatchedRuleID: "r1",
		Trace:         "Type:header|Key:x|Val:null|Op:exists|Target:|Keys:NoBody",
	}

	c, err := Compose(context.Background(), res)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if _, ok := c.Headers["Content-Type"]; ok {
		t.Error("Expected variant content-type to suppress the default")
	}
	if _, ok := c.Headers[HeaderMatchedRule]; ok {
		t.Error("Expected variant header to suppress the matched rule header")
	}
	if c.Headers["x-antbee-matched-rule"] != "custom" {
		t.Errorf("Expected variant value kept, got %q", c.Headers["x-antbee-matched-rule"])
	}
	if c.Headers[HeaderRuleTrace] != res.Trace {
		t.Errorf("Expected trace header, got %q", c.Headers[HeaderRuleTrace])
	}
	if c.Status != 201 {
		t.Errorf("Expected status 201, got %d", c.Status)
	}
}

func TestCompose_Delay(t *testing.T) {
	res := &resolver.Resolution{Selected: &models.ResponseVariant{StatusCode: 200, DelayMs: 50}}

	start := time.Now()
	if _, err := Compose(context.Background(), res); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected at least 50ms delay, got %v", elapsed)
	}
}

func TestCompose_DelayCancelled(t *testing.T) {
	res := &resolver.Resolution{Selected: &models.ResponseVariant{StatusCode: 200, DelayMs: 10000}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Compose(ctx, res)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected cancellation to cut the delay short, took %v", elapsed)
	}
}

func TestComposed_Write(t *testing.T) {
	c := &Composed{
		Status:  418,
		Headers: map[string]string{"X-B": "2", "X-A": "1"},
		Body:    json.RawMessage(`{"teapot":true}`),
	}

	rec := httptest.NewRecorder()
	if err := c.Write(rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if rec.Code != 418 {
		t.Errorf("Expected 418, got %d", rec.Code)
	}
	if rec.Header().Get("X-A") != "1" || rec.Header().Get("X-B") != "2" {
		t.Errorf("Expected headers written, got %v", rec.Header())
	}
	if rec.Body.String() != `{"teapot":true}` {
		t.Errorf("Unexpected body %s", rec.Body.String())
	}
}

package otel

import "testing"

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("authorization=Bearer abc, x-tenant=funding ,malformed,=nokey")
	if len(headers) != 2 {
		t.Fatalf("unexpected header count: %v", headers)
	}
	if headers["authorization"] != "Bearer abc" {
		t.Fatalf("unexpected authorization header: %q", headers["authorization"])
	}
	if headers["x-tenant"] != "funding" {
		t.Fatalf("unexpected tenant header: %q", headers["x-tenant"])
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatalf("empty input must yield no headers")
	}
}

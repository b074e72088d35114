package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 1 {
		t.Errorf("expected default page 1, got %d", params.Page)
	}
	if params.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, params.Limit)
	}
	if params.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", params.Offset())
	}
}

func TestParseExplicitValues(t *testing.T) {
	values := url.Values{"page": {"3"}, "limit": {"25"}}
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 3 || params.Limit != 25 {
		t.Errorf("unexpected params: %+v", params)
	}
	if params.Offset() != 50 {
		t.Errorf("expected offset 50, got %d", params.Offset())
	}
}

func TestParseCapsLimit(t *testing.T) {
	values := url.Values{"limit": {"5000"}}
	params, err := Parse(values, Options{MaxLimit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 50 {
		t.Errorf("expected limit capped at 50, got %d", params.Limit)
	}
}

func TestParseRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		values url.Values
		want   error
	}{
		{"page not a number", url.Values{"page": {"abc"}}, ErrInvalidPage},
		{"page zero", url.Values{"page": {"0"}}, ErrInvalidPage},
		{"negative page", url.Values{"page": {"-2"}}, ErrInvalidPage},
		{"limit not a number", url.Values{"limit": {"ten"}}, ErrInvalidLimit},
		{"limit zero", url.Values{"limit": {"0"}}, ErrInvalidLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.values, Options{}); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMust(t *testing.T) {
	params := Must(Params{})
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Errorf("Must should initialise defaults, got %+v", params)
	}
}

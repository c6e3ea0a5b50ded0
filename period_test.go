package permitloader

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPeriod_TableID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		p      Period
		expect string
	}{
		{p: Period{Year: 2021, Month: 1}, expect: "01_2021"},
		{p: Period{Year: 2021, Month: 12}, expect: "12_2021"},
		{p: Period{Year: 1999, Month: 7}, expect: "07_1999"},
		{p: Period{Year: 9999, Month: 10}, expect: "10_9999"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.expect, func(t *testing.T) {
			t.Parallel()

			if actual := c.p.TableID(); actual != c.expect {
				t.Errorf("expected %q, but %q", c.expect, actual)
			}
		})
	}
}

func TestPeriod_TableID_allSupported(t *testing.T) {
	t.Parallel()

	seen := map[string]Period{}
	for y := 1000; y <= 9999; y++ {
		for m := 1; m <= 12; m++ {
			p := Period{Year: y, Month: m}
			id := p.TableID()

			if expect := fmt.Sprintf("%02d_%d", m, y); id != expect {
				t.Fatalf("expected %q, but %q", expect, id)
			}
			if prev, ok := seen[id]; ok {
				t.Fatalf("%v and %v share table id %q", prev, p, id)
			}
			seen[id] = p
		}
	}
}

func TestPeriod_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		p      Period
		expect error
	}{
		{p: Period{Year: 2021, Month: 1}},
		{p: Period{Year: 2021, Month: 0}, expect: errInvalidMonth},
		{p: Period{Year: 2021, Month: 13}, expect: errInvalidMonth},
		{p: Period{Year: 999, Month: 1}, expect: errInvalidYear},
		{p: Period{Year: 10000, Month: 1}, expect: errInvalidYear},
	}

	for _, c := range cases {
		c := c
		t.Run(c.p.String(), func(t *testing.T) {
			t.Parallel()

			err := c.p.Validate()
			if !errors.Is(err, c.expect) {
				t.Errorf("expected %v, but %v", c.expect, err)
			}
		})
	}
}

func TestPeriodRange(t *testing.T) {
	t.Parallel()

	ps, err := PeriodRange(2021, 1, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expect := []Period{{2021, 1}, {2021, 2}, {2021, 3}}
	if diff := cmp.Diff(expect, ps); diff != "" {
		t.Errorf("periods mismatch (-want +got):\n%s", diff)
	}

	if _, err := PeriodRange(2021, 4, 3); !errors.Is(err, errInvalidRange) {
		t.Errorf("expected errInvalidRange, but %v", err)
	}

	if _, err := PeriodRange(2021, 1, 13); !errors.Is(err, errInvalidMonth) {
		t.Errorf("expected errInvalidMonth, but %v", err)
	}
}

func TestLatestPeriod(t *testing.T) {
	t.Parallel()

	cases := []struct {
		now    time.Time
		expect Period
	}{
		{now: time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC), expect: Period{2024, 3}},
		{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), expect: Period{2023, 12}},
		{now: time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), expect: Period{2024, 2}},
	}

	for _, c := range cases {
		c := c
		t.Run(c.now.Format(time.RFC3339), func(t *testing.T) {
			t.Parallel()

			if actual := LatestPeriod(c.now); actual != c.expect {
				t.Errorf("expected %v, but %v", c.expect, actual)
			}
		})
	}
}

func TestSortPeriods(t *testing.T) {
	t.Parallel()

	in := []Period{{2022, 1}, {2021, 12}, {2021, 3}, {2022, 1}}
	expect := []Period{{2021, 3}, {2021, 12}, {2022, 1}}

	if diff := cmp.Diff(expect, sortPeriods(in)); diff != "" {
		t.Errorf("periods mismatch (-want +got):\n%s", diff)
	}
	if in[0] != (Period{2022, 1}) {
		t.Errorf("input was modified: %v", in)
	}
}

func TestMonthlyLinks(t *testing.T) {
	t.Parallel()

	g := MonthlyLinks{BaseURL: "https://example.com/permit/"}
	p := Period{Year: 2021, Month: 2}

	endpoint := g.Endpoint(p)
	if endpoint != "https://example.com/permit/2021/02.zip" {
		t.Errorf("unexpected endpoint %q", endpoint)
	}

	parsed, err := PeriodFromEndpoint(endpoint)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if parsed != p {
		t.Errorf("expected %v, but %v", p, parsed)
	}

	if got := (MonthlyLinks{}).Endpoint(p); got != DefaultBaseURL+"/2021/02.zip" {
		t.Errorf("unexpected default endpoint %q", got)
	}

	for _, bad := range []string{"x", "https://example.com/permit/20x1/02.zip", "https://example.com/2021/13.zip"} {
		if _, err := PeriodFromEndpoint(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

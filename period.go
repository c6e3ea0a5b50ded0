package permitloader

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// DefaultBaseURL is the root of the Street Manager permit archive.
const DefaultBaseURL = "https://opendata.manage-roadworks.service.gov.uk/permit"

var (
	errInvalidYear  = errors.New("year must be between 1000 and 9999")
	errInvalidMonth = errors.New("month must be between 1 and 12")
	errInvalidRange = errors.New("start month must not be after end month")
)

// Period is a calendar month.
type Period struct {
	Year  int
	Month int
}

// Validate reports whether p is a supported period.
func (p Period) Validate() error {
	if p.Year < 1000 || p.Year > 9999 {
		return xerrors.Errorf("invalid period %d-%d: %w", p.Year, p.Month, errInvalidYear)
	}
	if p.Month < 1 || p.Month > 12 {
		return xerrors.Errorf("invalid period %d-%d: %w", p.Year, p.Month, errInvalidMonth)
	}
	return nil
}

// TableID returns the destination table name of the period like "01_2021".
func (p Period) TableID() string {
	return fmt.Sprintf("%02d_%04d", p.Month, p.Year)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// PeriodRange returns the months from startMonth to endMonth (both inclusive) of year.
func PeriodRange(year, startMonth, endMonth int) ([]Period, error) {
	if startMonth > endMonth {
		return nil, xerrors.Errorf("%d..%d: %w", startMonth, endMonth, errInvalidRange)
	}

	periods := make([]Period, 0, endMonth-startMonth+1)
	for m := startMonth; m <= endMonth; m++ {
		p := Period{Year: year, Month: m}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}

	return periods, nil
}

// LatestPeriod returns the most recently completed month relative to now.
// Run in April, it returns March.
func LatestPeriod(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

// sortPeriods returns the periods in ascending order without duplicates.
func sortPeriods(ps []Period) []Period {
	sorted := make([]Period, len(ps))
	copy(sorted, ps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].before(sorted[j]) })

	uniq := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		uniq = append(uniq, p)
	}

	return uniq
}

// LinkGenerator derives the download endpoint of a period.
type LinkGenerator interface {
	Endpoint(Period) string
}

// MonthlyLinks generates endpoints shaped like "{BaseURL}/{YYYY}/{MM}.zip".
type MonthlyLinks struct {
	BaseURL string
}

// Endpoint implements LinkGenerator.
func (g MonthlyLinks) Endpoint(p Period) string {
	base := g.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%04d/%02d.zip", strings.TrimRight(base, "/"), p.Year, p.Month)
}

// PeriodFromEndpoint parses the period from the last two path segments of
// an endpoint such as ".../2021/01.zip".
func PeriodFromEndpoint(endpoint string) (Period, error) {
	parts := strings.Split(endpoint, "/")
	if len(parts) < 2 {
		return Period{}, xerrors.Errorf("endpoint %q has no year/month segments", endpoint)
	}

	year, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return Period{}, xerrors.Errorf("failed to parse year of %q: %w", endpoint, err)
	}

	month, err := strconv.Atoi(strings.TrimSuffix(parts[len(parts)-1], ".zip"))
	if err != nil {
		return Period{}, xerrors.Errorf("failed to parse month of %q: %w", endpoint, err)
	}

	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}

	return p, nil
}

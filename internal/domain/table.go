package domain

import (
	"fmt"
	"strconv"
	"time"
)

// TableHeader is the column order of the flat locate table.
var TableHeader = []string{
	"id", "timestamp", "latitude", "longitude", "horizontal_accuracy",
	"supply_id", "ip_address", "created_at", "duplicate_count",
	"has_prev", "minutes_since_prev", "km_since_prev",
	"time_flag", "distance_flag", "speed_flag", "conflict_flag", "supplier_flag",
	"segment", "label",
}

// ToRecords flattens points into string rows, header first. Floats use the
// shortest exact representation and an unset label is the empty string.
func ToRecords(points []EnrichedPoint) [][]string {
	rows := make([][]string, 0, len(points)+1)
	rows = append(rows, append([]string(nil), TableHeader...))
	for _, p := range points {
		label, _ := p.Label.MarshalText()
		rows = append(rows, []string{
			p.ID,
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(p.Latitude),
			formatFloat(p.Longitude),
			formatOptionalFloat(p.HorizontalAccuracy),
			p.SupplyID,
			p.IPAddress,
			formatTime(p.CreatedAt),
			strconv.Itoa(p.DuplicateCount),
			strconv.FormatBool(p.HasPrev),
			formatFloat(p.MinutesSincePrev),
			formatFloat(p.KmSincePrev),
			strconv.FormatBool(p.TimeJump),
			strconv.FormatBool(p.DistanceJump),
			strconv.FormatBool(p.SpeedFlag),
			strconv.FormatBool(p.ConflictFlag),
			strconv.FormatBool(p.SupplierFlag),
			strconv.Itoa(p.Segment),
			string(label),
		})
	}
	return rows
}

// FromRecords parses rows produced by ToRecords. Columns are matched by
// header name, so their order may differ; a missing column is an error.
func FromRecords(rows [][]string) ([]EnrichedPoint, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("table has no header: %w", ErrMalformedInput)
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[name] = i
	}
	for _, name := range TableHeader {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("table is missing column %q: %w", name, ErrMalformedInput)
		}
	}

	points := make([]EnrichedPoint, 0, len(rows)-1)
	for n, row := range rows[1:] {
		p, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// rowReader accumulates the first parse error so a row can be decoded field
// by field without checking each one.
type rowReader struct {
	row   []string
	index map[string]int
	err   error
}

func (r *rowReader) str(col string) string {
	i := r.index[col]
	if i >= len(r.row) {
		r.fail(col, fmt.Errorf("short row"))
		return ""
	}
	return r.row[i]
}

func (r *rowReader) float(col string) float64 {
	v, err := strconv.ParseFloat(r.str(col), 64)
	r.fail(col, err)
	return v
}

func (r *rowReader) integer(col string) int {
	v, err := strconv.Atoi(r.str(col))
	r.fail(col, err)
	return v
}

func (r *rowReader) boolean(col string) bool {
	v, err := strconv.ParseBool(r.str(col))
	r.fail(col, err)
	return v
}

func (r *rowReader) fail(col string, err error) {
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %s: %v: %w", col, err, ErrMalformedInput)
	}
}

func parseRow(row []string, index map[string]int) (EnrichedPoint, error) {
	r := &rowReader{row: row, index: index}
	var p EnrichedPoint

	p.ID = r.str("id")
	ts, err := time.Parse(time.RFC3339Nano, r.str("timestamp"))
	r.fail("timestamp", err)
	p.Timestamp = ts
	p.Latitude = r.float("latitude")
	p.Longitude = r.float("longitude")
	if s := r.str("horizontal_accuracy"); s != "" {
		acc := r.float("horizontal_accuracy")
		p.HorizontalAccuracy = &acc
	}
	p.SupplyID = r.str("supply_id")
	p.IPAddress = r.str("ip_address")
	if s := r.str("created_at"); s != "" {
		created, err := time.Parse(time.RFC3339Nano, s)
		r.fail("created_at", err)
		p.CreatedAt = created
	}
	p.DuplicateCount = r.integer("duplicate_count")
	p.HasPrev = r.boolean("has_prev")
	p.MinutesSincePrev = r.float("minutes_since_prev")
	p.KmSincePrev = r.float("km_since_prev")
	p.TimeJump = r.boolean("time_flag")
	p.DistanceJump = r.boolean("distance_flag")
	p.SpeedFlag = r.boolean("speed_flag")
	p.ConflictFlag = r.boolean("conflict_flag")
	p.SupplierFlag = r.boolean("supplier_flag")
	p.Segment = r.integer("segment")
	r.fail("label", p.Label.UnmarshalText([]byte(r.str("label"))))

	return p, r.err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Command validate runs every engine preset over a locate fixture and checks
// the invariants the annotation UI relies on: point conservation through
// dedupe, sort order, contiguous segment ids, summary totals, score bounds,
// table round trips and resume stability. It prints a per-preset report and
// exits non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/validate -fixture data/mock/locates.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/google/go-cmp/cmp"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// phase tracks pass/fail for one preset.
type phase struct {
	name   string
	stats  string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	fixture := flag.String("fixture", "", "path to a JSON array of locates")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*fixture))
}

func run(fixturePath string) int {
	fmt.Println("=== Locate Engine Validation ===")
	fmt.Println()

	points, err := loadJSON[domain.Point](fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}
	if len(points) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: fixture has no locates")
		return 1
	}

	phases := make([]*phase, 0, len(domain.PresetNames()))
	for _, name := range domain.PresetNames() {
		cfg, _ := domain.PresetByName(name)
		phases = append(phases, validatePreset(cfg, points))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-14s %-52s %s\n", p.name, p.stats, status)
	}

	fmt.Println()
	fmt.Printf("Fixture: %d locates\n", len(points))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validatePreset(cfg domain.EngineConfig, input []domain.Point) *phase {
	engine := domain.NewEngine(cfg)
	r := engine.Run(input)
	p := &phase{
		name: cfg.Name,
		stats: fmt.Sprintf("%d locates, %d dupes, %d segments, quality %.1f",
			len(r.Points), r.DuplicatesRemoved, len(r.Segments), r.FleetQuality),
	}

	checkConservation(p, r, len(input))
	checkOrder(p, r.Points)
	checkSegmentIDs(p, r.Points)
	checkSummaries(p, r)
	checkScores(p, r)
	checkTableRoundTrip(p, r.Points)
	checkResume(p, engine, r)
	checkDeterminism(p, engine, input, r)
	return p
}

func checkConservation(p *phase, r domain.Result, inputLen int) {
	if got := len(r.Points) + r.DuplicatesRemoved; got != inputLen {
		p.errorf("points+duplicates = %d, want %d input locates", got, inputLen)
	}
	dupTotal := 0
	for _, pt := range r.Points {
		dupTotal += pt.DuplicateCount
	}
	if dupTotal != r.DuplicatesRemoved {
		p.errorf("sum of duplicate_count = %d, want %d removed", dupTotal, r.DuplicatesRemoved)
	}
}

func checkOrder(p *phase, points []domain.EnrichedPoint) {
	for i, pt := range points {
		if i == 0 {
			if pt.HasPrev {
				p.errorf("first point has a predecessor")
			}
			continue
		}
		if !pt.HasPrev {
			p.errorf("point %d has no predecessor", i)
		}
		if pt.Timestamp.Before(points[i-1].Timestamp) {
			p.errorf("point %d at %s sorts before its predecessor", i, pt.Timestamp)
		}
		if pt.MinutesSincePrev < 0 || pt.KmSincePrev < 0 {
			p.errorf("point %d has negative deltas", i)
		}
	}
}

func checkSegmentIDs(p *phase, points []domain.EnrichedPoint) {
	if len(points) > 0 && points[0].Segment != 0 {
		p.errorf("first point is in segment %d, want 0", points[0].Segment)
	}
	for i := 1; i < len(points); i++ {
		if d := points[i].Segment - points[i-1].Segment; d != 0 && d != 1 {
			p.errorf("segment id jumps from %d to %d at point %d", points[i-1].Segment, points[i].Segment, i)
		}
	}
}

func checkSummaries(p *phase, r domain.Result) {
	want := 0
	if len(r.Points) > 0 {
		want = r.Points[len(r.Points)-1].Segment + 1
	}
	if len(r.Segments) != want {
		p.errorf("%d summaries, want %d", len(r.Segments), want)
		return
	}
	total := 0
	for i, s := range r.Segments {
		if s.SegmentID != i {
			p.errorf("summary %d has id %d", i, s.SegmentID)
		}
		if s.PointCount <= 0 {
			p.errorf("segment %d is empty", i)
		}
		if s.Label.IsSet() {
			p.errorf("segment %d is labeled on a fresh run", i)
		}
		total += s.PointCount
	}
	if total != len(r.Points) {
		p.errorf("summaries count %d points, want %d", total, len(r.Points))
	}
}

func checkScores(p *phase, r domain.Result) {
	for _, s := range r.Segments {
		if math.IsNaN(s.QualityScore) || s.QualityScore < 0 || s.QualityScore > 100 {
			p.errorf("segment %d score %v outside [0,100]", s.SegmentID, s.QualityScore)
		}
	}
	if math.IsNaN(r.FleetQuality) || r.FleetQuality < 0 || r.FleetQuality > 100 {
		p.errorf("fleet quality %v outside [0,100]", r.FleetQuality)
	}
}

func checkTableRoundTrip(p *phase, points []domain.EnrichedPoint) {
	back, err := domain.FromRecords(domain.ToRecords(points))
	if err != nil {
		p.errorf("table round trip: %v", err)
		return
	}
	if diff := cmp.Diff(points, back); diff != "" {
		p.errorf("table round trip changed points (-want +got):\n%s", diff)
	}
}

func checkResume(p *phase, engine *domain.Engine, r domain.Result) {
	if len(r.Points) == 0 {
		return
	}
	resumed, err := engine.Resume(r.Points)
	if err != nil {
		p.errorf("resume: %v", err)
		return
	}
	if diff := cmp.Diff(r.Segments, resumed.Segments); diff != "" {
		p.errorf("resume changed summaries (-run +resume):\n%s", diff)
	}
}

func checkDeterminism(p *phase, engine *domain.Engine, input []domain.Point, r domain.Result) {
	again := engine.Run(input)
	if diff := cmp.Diff(r.Points, again.Points); diff != "" {
		p.errorf("second run differs (-first +second):\n%s", diff)
	}
}

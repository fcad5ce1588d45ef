// Command genmock writes a reproducible synthetic locate history for one
// device: stays around a handful of places, duplicate reports, bursts from
// several suppliers and the occasional teleport. The output is the JSON form
// of []domain.Point and feeds cmd/validate and manual testing.
//
// Usage:
//
//	go run ./cmd/genmock -seed 7 -stays 12 -out data/mock/locates.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

// anchors are the places a synthetic device dwells around.
var anchors = []struct {
	name     string
	lat, lon float64
}{
	{"lower manhattan", 40.7128, -74.0060},
	{"jersey city", 40.7178, -74.0431},
	{"brooklyn heights", 40.6960, -73.9936},
	{"newark airport", 40.6895, -74.1745},
	{"chicago loop", 41.8781, -87.6298},
}

var honestSuppliers = []string{"101", "102", "205", "311", "412"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	seed := flag.Uint64("seed", 1, "random seed; equal seeds give equal output")
	stays := flag.Int("stays", 10, "number of stays to generate")
	device := flag.String("device", "", "device id (default: derived from the seed)")
	out := flag.String("out", "", "output path for the JSON fixture")
	flag.Parse()

	if *out == "" || *stays <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -stays > 0")
	}

	deviceID := *device
	if deviceID == "" {
		deviceID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("genmock-"+strconv.FormatUint(*seed, 10))).String()
	}
	deviceID, err := domain.ValidateDeviceID(deviceID)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	points := generate(rng, deviceID, *stays)

	if err := writeJSON(*out, points); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d locates for %s: %s", len(points), deviceID, *out)

	printStats(points)
	return nil
}

// generate walks the device between anchors. Each stay emits a burst of
// locates jittered within ~50 m; some are reported twice and some come from
// a denylisted supplier.
func generate(rng *rand.Rand, deviceID string, stays int) []domain.Point {
	var points []domain.Point
	now := baseDate.Add(8 * time.Hour)

	for s := 0; s < stays; s++ {
		a := anchors[rng.IntN(len(anchors))]
		n := 3 + rng.IntN(8)
		for i := 0; i < n; i++ {
			p := domain.Point{
				ID:        deviceID,
				Timestamp: now,
				Latitude:  round(a.lat+jitter(rng, 0.0005), 6),
				Longitude: round(a.lon+jitter(rng, 0.0005), 6),
				SupplyID:  honestSuppliers[rng.IntN(len(honestSuppliers))],
				CreatedAt: now.Add(time.Duration(30+rng.IntN(300)) * time.Second),
			}
			if rng.Float64() < 0.7 {
				acc := float64(5 + rng.IntN(60))
				p.HorizontalAccuracy = &acc
			}
			if rng.Float64() < 0.5 {
				p.IPAddress = fmt.Sprintf("10.%d.%d.%d", rng.IntN(256), rng.IntN(256), 1+rng.IntN(254))
			}
			if rng.Float64() < 0.1 {
				p.SupplyID = domain.DefaultSupplierDenylist[rng.IntN(len(domain.DefaultSupplierDenylist))]
			}
			points = append(points, p)

			// The same report resold by another exchange a little later.
			if rng.Float64() < 0.2 {
				dup := p
				dup.SupplyID = honestSuppliers[rng.IntN(len(honestSuppliers))]
				dup.CreatedAt = p.CreatedAt.Add(time.Duration(1+rng.IntN(120)) * time.Second)
				points = append(points, dup)
			}
			now = now.Add(time.Duration(2+rng.IntN(20)) * time.Minute)
		}

		// Travel time to the next stay; one in eight gaps spans days.
		gap := time.Duration(20+rng.IntN(180)) * time.Minute
		if rng.IntN(8) == 0 {
			gap = time.Duration(26+rng.IntN(72)) * time.Hour
		}
		now = now.Add(gap)
	}

	// Upstream delivers rows in ingest order, not event order.
	rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
	return points
}

func jitter(rng *rand.Rand, span float64) float64 {
	return (rng.Float64()*2 - 1) * span
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func printStats(points []domain.Point) {
	for _, name := range domain.PresetNames() {
		cfg, _ := domain.PresetByName(name)
		r := domain.NewEngine(cfg).Run(points)
		log.Printf("  %-13s %4d locates  %3d duplicates  %3d segments  fleet quality %.1f",
			name, len(r.Points), r.DuplicatesRemoved, len(r.Segments), r.FleetQuality)
	}
}

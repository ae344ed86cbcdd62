// Command genmock generates a synthetic tide-gauge reading fixture with a
// known set of injected anomalies. The fixture feeds the offline runner and
// the integration tests; the manifest records exactly which readings were
// perturbed so detection output can be checked against ground truth.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/readings_260314.json \
//	  -manifest data/mock/anomalies_260314.json \
//	  -days 7 -anomalies 12 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

var baseDate = time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)

// injected records one perturbed reading for the manifest.
type injected struct {
	Station   string  `json:"station"`
	Timestamp string  `json:"timestamp"`
	Clean     float64 `json:"clean_value"`
	Perturbed float64 `json:"perturbed_value"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the readings fixture")
	manifestOut := flag.String("manifest", "", "output path for the injected-anomaly manifest")
	days := flag.Int("days", 7, "number of days to generate")
	interval := flag.Duration("interval", time.Hour, "sampling interval")
	anomalies := flag.Int("anomalies", 12, "number of anomalies to inject")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" || *manifestOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -manifest")
	}

	profiles := domain.DefaultProfiles()
	rng := rand.New(rand.NewSource(*seed))

	stations := profiles.Stations()
	sort.Strings(stations)

	var readings []domain.RawReading
	for step := 0; step < *days*int(24*time.Hour / *interval); step++ {
		ts := baseDate.Add(time.Duration(step) * *interval)
		tide := tideLevel(ts)
		for _, station := range stations {
			temp := 14.0 + 4.0*rng.Float64()
			readings = append(readings, domain.RawReading{
				Station:     station,
				Timestamp:   ts.Format(time.RFC3339),
				SeaLevelM:   round3(tide + profiles.Offset(station) + 0.004*rng.NormFloat64()),
				WaterTempC:  &temp,
				GaugeSource: "genmock",
			})
		}
	}

	manifest := inject(rng, readings, *anomalies, profiles)

	if err := writeJSON(*out, readings); err != nil {
		return fmt.Errorf("writing readings fixture: %w", err)
	}
	log.Printf("wrote %d readings: %s", len(readings), *out)

	if err := writeJSON(*manifestOut, manifest); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	log.Printf("injected %d anomalies: %s", len(manifest), *manifestOut)
	return nil
}

// tideLevel is a simple semidiurnal tide: the M2 constituent over a small
// seasonal trend. Absolute realism does not matter, cross-station coherence
// does: every station sees the same signal plus its own offset.
func tideLevel(ts time.Time) float64 {
	hours := ts.Sub(baseDate).Hours()
	m2 := 0.12 * math.Sin(2*math.Pi*hours/12.42)
	trend := 0.21 + 0.01*math.Sin(2*math.Pi*hours/(24*365.25))
	return trend + m2
}

// inject perturbs readings in place, skipping basin stations since the rules
// never validate them.
func inject(rng *rand.Rand, readings []domain.RawReading, n int, profiles domain.StationSet) []injected {
	manifest := make([]injected, 0, n)
	seen := make(map[int]bool)
	for len(manifest) < n {
		i := rng.Intn(len(readings))
		if seen[i] || profiles.Group(readings[i].Station) == domain.GroupBasin {
			continue
		}
		seen[i] = true

		clean := readings[i].SeaLevelM
		spike := 0.08 + 0.3*rng.Float64()
		if rng.Intn(2) == 0 {
			spike = -spike
		}
		readings[i].SeaLevelM = round3(clean + spike)
		manifest = append(manifest, injected{
			Station:   readings[i].Station,
			Timestamp: readings[i].Timestamp,
			Clean:     clean,
			Perturbed: readings[i].SeaLevelM,
		})
	}
	sort.Slice(manifest, func(i, j int) bool {
		if manifest[i].Timestamp != manifest[j].Timestamp {
			return manifest[i].Timestamp < manifest[j].Timestamp
		}
		return manifest[i].Station < manifest[j].Station
	})
	return manifest
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

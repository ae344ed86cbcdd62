// Command detect runs the validation rules offline over a readings fixture
// and reports per-phase results: load, live detection, cache equivalence,
// and correction suggestions. With -postgres-dsn it also loads the fixture
// into Postgres and cross-checks the SQL window-function expected values
// against the in-process resolver. Exit status is nonzero when any phase
// fails, so it slots into CI as a self-check.
//
// Usage:
//
//	go run ./cmd/detect \
//	  -readings data/mock/readings_260314.json \
//	  -start 2026-03-14T00:00:00Z -end 2026-03-20T23:00:00Z \
//	  [-postgres-dsn postgres://...]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marigraph/sealevel-rules/internal/cache"
	"github.com/marigraph/sealevel-rules/internal/domain"
	"github.com/marigraph/sealevel-rules/internal/engine"
	"github.com/marigraph/sealevel-rules/internal/observability"
	"github.com/marigraph/sealevel-rules/internal/store"
)

// phase tracks pass/fail for one check.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func (p *phase) report() {
	if p.passed() {
		fmt.Printf("PASS  %s\n", p.name)
		return
	}
	fmt.Printf("FAIL  %s\n", p.name)
	for _, e := range p.errors {
		fmt.Printf("      %s\n", e)
	}
}

func main() {
	readingsPath := flag.String("readings", "", "path to the readings fixture")
	startStr := flag.String("start", "", "range start (RFC 3339)")
	endStr := flag.String("end", "", "range end (RFC 3339)")
	postgresDSN := flag.String("postgres-dsn", "", "optional Postgres DSN for the SQL cross-check phase")
	flag.Parse()

	if *readingsPath == "" || *startStr == "" || *endStr == "" {
		flag.Usage()
		os.Exit(1)
	}
	start, err := time.Parse(time.RFC3339, *startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: bad -start: %v\n", err)
		os.Exit(1)
	}
	end, err := time.Parse(time.RFC3339, *endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: bad -end: %v\n", err)
		os.Exit(1)
	}

	if code := run(*readingsPath, *postgresDSN, start, end); code != 0 {
		os.Exit(code)
	}
}

func run(readingsPath, postgresDSN string, start, end time.Time) int {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	profiles := domain.DefaultProfiles()

	fmt.Println("=== Sea Level Rules Offline Check ===")
	fmt.Println()

	// ── Phase 1: load fixture ──
	loadPhase := &phase{name: "load readings"}
	measurements := store.NewMemoryStore()
	count := loadReadings(loadPhase, readingsPath, measurements)
	loadPhase.report()
	if !loadPhase.passed() {
		return 1
	}
	fmt.Printf("      %d readings loaded\n", count)

	detector := engine.NewDetector(measurements, profiles, engine.Limits{MaxRows: count + 1}, logger, metrics)
	cacheStore := cache.NewMemoryStore(4)
	refresher := cache.NewRefresher(cacheStore, detector, cache.NewMemoryLocker(), clockwork.NewRealClock(), logger, metrics)
	router := engine.NewRouter(detector, cacheStore, refresher, logger, metrics)
	req := domain.DetectRequest{Start: start, End: end}

	// ── Phase 2: live detection ──
	livePhase := &phase{name: "live detection"}
	live, err := router.Detect(ctx, req)
	if err != nil {
		livePhase.errorf("detect: %v", err)
	} else if live.TotalRecords == 0 {
		livePhase.errorf("no records in range %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	livePhase.report()
	if !livePhase.passed() {
		return 1
	}
	fmt.Printf("      %d records, %d outliers (%.3f%%), %d exclusions\n",
		live.TotalRecords, live.OutliersDetected, live.OutlierPercentage,
		live.Validation.TotalExclusions)

	// ── Phase 3: cached path must match the live path byte for byte ──
	cachePhase := &phase{name: "cache equivalence"}
	if _, err := router.RefreshCache(ctx, req); err != nil {
		cachePhase.errorf("refresh: %v", err)
	} else {
		cached, err := router.DetectOptimized(ctx, req, true)
		switch {
		case err != nil:
			cachePhase.errorf("cached detect: %v", err)
		case !cached.Performance.CacheUsed:
			cachePhase.errorf("expected a cache hit after refresh")
		default:
			rawLive, _ := json.Marshal(live)
			rawCached, _ := json.Marshal(cached.DetectResult)
			if !bytes.Equal(rawLive, rawCached) {
				cachePhase.errorf("cached payload differs from live payload")
			}
		}
	}
	cachePhase.report()

	// ── Phase 4: correction suggestions ──
	suggestPhase := &phase{name: "correction suggestions"}
	suggestions, err := router.SuggestCorrections(ctx, req)
	if err != nil {
		suggestPhase.errorf("suggest: %v", err)
	} else {
		for _, s := range suggestions.Suggestions {
			if s.Confidence <= 0 || s.Confidence > 1 {
				suggestPhase.errorf("suggestion for %s@%s has confidence %v",
					s.Station, s.Timestamp.Format(time.RFC3339), s.Confidence)
			}
		}
	}
	suggestPhase.report()
	if suggestPhase.passed() {
		fmt.Printf("      %d suggestions for %d outliers\n",
			suggestions.TotalSuggestions, live.OutliersDetected)
	}

	// ── Phase 5: SQL expected values must match the in-process resolver ──
	pgPassed := true
	if postgresDSN != "" {
		pgPhase := &phase{name: "postgres cross-check"}
		crossCheckPostgres(ctx, pgPhase, postgresDSN, measurements, profiles, start, end)
		pgPhase.report()
		pgPassed = pgPhase.passed()
	}

	fmt.Println()
	if !cachePhase.passed() || !suggestPhase.passed() || !pgPassed {
		fmt.Println("RESULT: FAIL")
		return 1
	}
	fmt.Println("RESULT: PASS")
	return 0
}

// crossCheckPostgres loads the fixture into Postgres and compares every
// window-function expected value against the in-process resolver.
func crossCheckPostgres(ctx context.Context, p *phase, dsn string, measurements *store.MemoryStore, profiles domain.StationSet, start, end time.Time) {
	pg, err := store.OpenPostgres(ctx, dsn)
	if err != nil {
		p.errorf("open postgres: %v", err)
		return
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		p.errorf("ensure schema: %v", err)
		return
	}

	var stations []string
	offsets := make(map[string]float64)
	for _, s := range profiles.Stations() {
		if profiles.Group(s) == domain.GroupBasin {
			continue
		}
		stations = append(stations, s)
		offsets[s] = profiles.Offset(s)
	}

	rows, err := measurements.Fetch(ctx, stations, start, end)
	if err != nil {
		p.errorf("fetch fixture rows: %v", err)
		return
	}
	if err := pg.Insert(ctx, rows); err != nil {
		p.errorf("load postgres: %v", err)
		return
	}

	southern := profiles.Southern()
	southernRows, err := measurements.Fetch(ctx, southern, start, end)
	if err != nil {
		p.errorf("fetch southern rows: %v", err)
		return
	}
	grouped := domain.GroupByTimestamp(southernRows)

	resolved, err := pg.FetchResolved(ctx, stations, southern, offsets, start, end)
	if err != nil {
		p.errorf("fetch resolved: %v", err)
		return
	}
	if len(resolved) != len(rows) {
		p.errorf("row count mismatch: postgres %d, fixture %d", len(resolved), len(rows))
		return
	}

	resolver := domain.NewExpectedResolver(profiles)
	for i, row := range resolved {
		m := rows[i]
		if row.Station != m.Station || !row.Timestamp.Equal(m.Timestamp) {
			p.errorf("row %d: postgres %s@%s, fixture %s@%s", i,
				row.Station, row.Timestamp.Format(time.RFC3339),
				m.Station, m.Timestamp.Format(time.RFC3339))
			continue
		}
		southernAt := grouped[m.Timestamp.UTC()]
		full, fullOK := domain.FullBaseline(m.Timestamp, southernAt)
		res := resolver.Resolve(m, southernAt, full, fullOK)
		switch res.Outcome {
		case domain.Resolved:
			if !row.Expected.Valid {
				p.errorf("%s@%s: resolver expected %.6f, postgres had no baseline",
					m.Station, m.Timestamp.Format(time.RFC3339), res.Expected)
			} else if math.Abs(row.Expected.Float64-res.Expected) > 1e-9 {
				p.errorf("%s@%s: resolver expected %.12f, postgres %.12f",
					m.Station, m.Timestamp.Format(time.RFC3339), res.Expected, row.Expected.Float64)
			}
		case domain.NoBaseline:
			if row.Expected.Valid {
				p.errorf("%s@%s: resolver saw no baseline, postgres expected %.6f",
					m.Station, m.Timestamp.Format(time.RFC3339), row.Expected.Float64)
			}
		}
	}
	if p.passed() {
		fmt.Printf("      %d rows cross-checked\n", len(resolved))
	}
}

func loadReadings(p *phase, path string, measurements *store.MemoryStore) int {
	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read fixture: %v", err)
		return 0
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		p.errorf("parse fixture: %v", err)
		return 0
	}

	batch := make([]domain.Measurement, 0, len(raws))
	for i, raw := range raws {
		m, err := domain.ParseReading(raw)
		if err != nil {
			p.errorf("reading %d: %v", i, err)
			continue
		}
		batch = append(batch, m)
	}
	if err := measurements.Insert(context.Background(), batch); err != nil {
		p.errorf("insert: %v", err)
	}
	return len(batch)
}

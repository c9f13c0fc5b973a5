package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	fusion "github.com/milosgajdos/go-fusion"
	"github.com/milosgajdos/go-fusion/dataset"
	"github.com/milosgajdos/go-fusion/eval"
	"github.com/milosgajdos/go-fusion/export"
	"github.com/milosgajdos/go-fusion/model"
	"github.com/milosgajdos/go-fusion/sim"
	"github.com/milosgajdos/go-fusion/store"
	"github.com/milosgajdos/go-fusion/tracker"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

var (
	input    = flag.String("input", "", "measurement file with ground truth")
	simulate = flag.Int("simulate", 0, "number of simulated measurements used instead of -input")
	simDt    = flag.Float64("dt", 0.05, "time between simulated measurements [s]")
	save     = flag.String("save", "", "write simulated measurements to this file")
	config   = flag.String("config", "", "tracker JSON configuration file")
	output   = flag.String("output", "", "CSV file the estimates are written to")
	dbPath   = flag.String("db", "", "SQLite database the estimates are stored in")
	plotPath = flag.String("plot", "", "PNG file the trajectory plot is saved to")
)

func main() {
	flag.Parse()

	cfg := tracker.DefaultConfig()
	if *config != "" {
		var err error
		cfg, err = tracker.LoadConfig(*config)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	records, source, err := loadRecords(cfg)
	if err != nil {
		log.Fatalf("Failed to load measurements: %v", err)
	}
	log.Printf("Loaded %d measurements from %s", len(records), source)

	if *save != "" {
		if err := saveRecords(*save, records); err != nil {
			log.Fatalf("Failed to save measurements: %v", err)
		}
	}

	exporters, db, err := newExporters(source)
	if err != nil {
		log.Fatalf("Failed to create exporters: %v", err)
	}

	tr, err := tracker.New(nil, cfg)
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}

	var estimates, truths []mat.Vector
	nis := make(map[fusion.SensorType][]float64)

	for i, r := range records {
		m := r.Measurement
		wasInit := tr.Initialized()

		if err := tr.ProcessMeasurement(m); err != nil {
			log.Printf("Skipping measurement %d (%v at %d): %v", i, m.Sensor, m.Timestamp, err)
			continue
		}

		if !tr.Initialized() {
			continue
		}

		updated := wasInit && tr.Time() == m.Timestamp && enabled(cfg, m.Sensor)
		if updated {
			nis[m.Sensor] = append(nis[m.Sensor], tr.NIS(m.Sensor))
		}

		estimates = append(estimates, eval.CartesianState(tr.State()))
		truths = append(truths, r.Truth)

		row := &export.Row{
			Timestamp: m.Timestamp,
			Sensor:    m.Sensor,
			Estimate:  tr.Estimate(),
			NIS:       tr.NIS(m.Sensor),
		}
		for _, e := range exporters {
			if err := e.Write(row); err != nil {
				log.Fatalf("Failed to export estimate: %v", err)
			}
		}
	}

	for _, e := range exporters {
		if err := e.Close(); err != nil {
			log.Printf("Failed to close exporter: %v", err)
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}

	if len(estimates) == 0 {
		log.Fatalf("No measurement initialized the tracker")
	}

	rmse, err := eval.RMSE(estimates, truths)
	if err != nil {
		log.Fatalf("Failed to calculate RMSE: %v", err)
	}
	fmt.Printf("RMSE [px, py, vx, vy]: %.4f %.4f %.4f %.4f\n",
		rmse.AtVec(0), rmse.AtVec(1), rmse.AtVec(2), rmse.AtVec(3))

	for _, s := range []fusion.SensorType{fusion.Lidar, fusion.Radar} {
		if len(nis[s]) == 0 {
			continue
		}
		stats, err := eval.NewNISStats(s.Dim(), nis[s])
		if err != nil {
			log.Fatalf("Failed to calculate %v NIS: %v", s, err)
		}
		fmt.Printf("%s %v\n", s, stats)
	}

	if *plotPath != "" {
		p, err := sim.New2DPlot(sim.Positions(truths), sim.MeasurementPositions(records), sim.Positions(estimates))
		if err != nil {
			log.Fatalf("Failed to create plot: %v", err)
		}

		if err := p.Save(8*vg.Inch, 8*vg.Inch, *plotPath); err != nil {
			log.Fatalf("Failed to save plot: %v", err)
		}
	}
}

func loadRecords(cfg *tracker.Config) ([]dataset.Record, string, error) {
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()

		records, err := dataset.Read(f)
		return records, *input, err
	}

	if *simulate <= 0 {
		return nil, "", fmt.Errorf("either -input or -simulate must be given")
	}

	s, err := newScenario(cfg)
	if err != nil {
		return nil, "", err
	}

	records, err := s.Run(*simulate)
	return records, fmt.Sprintf("simulation(%d)", *simulate), err
}

func newScenario(cfg *tracker.Config) (*sim.Scenario, error) {
	q, err := model.NewProcessNoise(cfg.StdA, cfg.StdYawDD, cfg.Seed)
	if err != nil {
		return nil, err
	}

	x0 := mat.NewVecDense(model.StateDim, []float64{0.6, 0.6, 5.2, 0.0, 0.1})
	tgt, err := sim.NewTarget(x0, q)
	if err != nil {
		return nil, err
	}

	ln, err := model.NewLidarNoise(cfg.StdLaserPx, cfg.StdLaserPy, cfg.Seed)
	if err != nil {
		return nil, err
	}
	lidar, err := model.NewLidar(ln)
	if err != nil {
		return nil, err
	}

	rn, err := model.NewRadarNoise(cfg.StdRadarRho, cfg.StdRadarPhi, cfg.StdRadarRhoDot, cfg.Seed)
	if err != nil {
		return nil, err
	}
	radar, err := model.NewRadar(rn)
	if err != nil {
		return nil, err
	}

	return &sim.Scenario{
		Target: tgt,
		Lidar:  lidar,
		Radar:  radar,
		Dt:     *simDt,
	}, nil
}

func saveRecords(path string, records []dataset.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := dataset.Write(f, records); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func newExporters(source string) ([]export.Exporter, *store.Store, error) {
	var exporters []export.Exporter

	if *output != "" {
		e, err := export.NewCSVFileExporter(*output)
		if err != nil {
			return nil, nil, err
		}
		exporters = append(exporters, e)
	}

	if *dbPath == "" {
		return exporters, nil, nil
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return nil, nil, err
	}

	run, err := db.NewRun(source)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Printf("Storing run %s in %s", run.ID, *dbPath)

	return append(exporters, run), db, nil
}

func enabled(cfg *tracker.Config, s fusion.SensorType) bool {
	switch s {
	case fusion.Lidar:
		return cfg.UseLidar
	case fusion.Radar:
		return cfg.UseRadar
	}

	return false
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/rdk/logging"

	"github.com/erh/camarray"
	"github.com/erh/camarray/measure"
	"github.com/erh/camarray/observation"
	"github.com/erh/camarray/report"
)

// SetupFile is the default name of the calibration output inside the data directory.
const SetupFile = "camera_setup.json"

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("camarray"))
}

// Arguments for the command.
type Arguments struct {
	Command string `flag:"0,required,usage=calibrate|clean|measure"`

	DataDir    string `flag:"data-dir,default=data,usage=directory holding observation records and point clouds"`
	Purge      bool   `flag:"purge,usage=remove records left over from an earlier capture before calibrating"`
	StaleAfter int    `flag:"stale-after,default=600,usage=seconds a record may predate the newest one before it is purged"`
	Output     string `flag:"output,usage=transform map to write or read (default <data-dir>/camera_setup.json)"`
	Report     string `flag:"report,usage=write a JSON calibration report here"`
	Plot       string `flag:"plot,usage=write a top down PNG of the calibrated rig here"`

	Bottom  int `flag:"bottom,usage=measurement cylinder bottom in mm"`
	Height  int `flag:"height,default=2000,usage=measurement cylinder height in mm"`
	Radius  int `flag:"radius,usage=measurement cylinder radius in mm (0 keeps every point)"`
	Workers int `flag:"workers,default=4,usage=point clouds processed at once"`

	Debug bool `flag:"debug,usage=debug logging"`
}

func (a *Arguments) output() string {
	if a.Output != "" {
		return a.Output
	}
	return filepath.Join(a.DataDir, SetupFile)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	switch argsParsed.Command {
	case "calibrate":
		return calibrate(&argsParsed, logger)
	case "clean":
		removed, err := observation.Clean(argsParsed.DataDir)
		if err != nil {
			return err
		}
		logger.Infof("removed %d files from %s", len(removed), argsParsed.DataDir)
		return nil
	case "measure":
		return runMeasure(ctx, &argsParsed, logger)
	}

	return fmt.Errorf("invalid command [%s]", argsParsed.Command)
}

func calibrate(a *Arguments, logger logging.Logger) error {
	if a.Purge {
		removed, err := observation.PurgeStale(a.DataDir, time.Duration(a.StaleAfter)*time.Second)
		if err != nil {
			return err
		}
		for _, fn := range removed {
			logger.Infof("purged stale record %s", fn)
		}
	}

	obs, malformed, err := observation.LoadDir(a.DataDir)
	if err != nil {
		return err
	}
	for _, m := range malformed {
		logger.Warnw("skipping record", "error", m)
	}
	if len(obs) == 0 {
		return fmt.Errorf("no observation records in %s", a.DataDir)
	}

	cal, calErr := camarray.Calibrate(obs, logger)

	if a.Report != "" {
		err := report.New(cal, malformed, calErr).WriteFile(a.Report)
		if err != nil {
			return multierr.Combine(calErr, err)
		}
		logger.Infof("wrote report %s", a.Report)
	}

	if calErr != nil {
		return calErr
	}
	if len(cal.Absolute) == 0 {
		return fmt.Errorf("no camera could be calibrated")
	}
	if err := cal.Err(); err != nil {
		logger.Warnf("%d of %d cameras not calibrated: %v", len(cal.Failed()), len(obs), err)
	}

	if err := writeSetup(a.output(), cal); err != nil {
		return err
	}
	logger.Infof("wrote %d camera transforms to %s", len(cal.Absolute), a.output())

	if a.Plot != "" {
		if err := report.WritePlot(a.Plot, cal, obs[cal.Base]); err != nil {
			return err
		}
		logger.Infof("wrote plot %s", a.Plot)
	}

	return nil
}

func writeSetup(fn string, cal *camarray.Calibration) error {
	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return cal.Serialize(f)
}

func runMeasure(ctx context.Context, a *Arguments, logger logging.Logger) error {
	f, err := os.Open(a.output())
	if err != nil {
		return err
	}
	defer f.Close()

	transforms, err := camarray.ReadTransforms(f)
	if err != nil {
		return fmt.Errorf("cannot read (%s): %w", a.output(), err)
	}

	cfg := measure.Config{
		Dir:     a.DataDir,
		Workers: a.Workers,
	}
	if a.Radius > 0 {
		cfg.Cylinder = &measure.Cylinder{
			Bottom: float64(a.Bottom) / 1000,
			Height: float64(a.Height) / 1000,
			Radius: float64(a.Radius) / 1000,
		}
	}

	_, err = measure.Run(ctx, cfg, transforms, logger)
	return err
}

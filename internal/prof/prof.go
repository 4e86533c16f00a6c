// Package prof starts optional continuous profiling with Pyroscope.
package prof

import (
	"context"
	"maps"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	TenantID      string

	// Tags are attached to every profile; main adds the module slug and
	// version so profiles line up with lifecycle metrics.
	Tags map[string]string

	ProfileMutexFraction int
	BlockProfileRate     int
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

func (o Options) config() (pyroscope.Config, error) {
	if o.ServerAddress == "" {
		return pyroscope.Config{}, xerrors.Newf("invalid server address (%q)", o.ServerAddress)
	}
	if o.AppName == "" {
		return pyroscope.Config{}, xerrors.New("app name is required")
	}
	return pyroscope.Config{
		ApplicationName: o.AppName,
		ServerAddress:   o.ServerAddress,
		TenantID:        o.TenantID,
		Tags:            maps.Clone(o.Tags),
		ProfileTypes:    profileTypes,
	}, nil
}

// Start begins pushing profiles and returns a stop func. The stop func is
// always non-nil, even on error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	cfg, err := opts.config()
	if err != nil {
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		err = xerrors.Wrap(err, "pyroscope start")
		L.Error(ctx, err, "pyroscope start failed", "server_address", opts.ServerAddress, "app_name", opts.AppName)
		return func() {}, err
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	return func() {
		profiler.Stop()
		L.Info(context.Background(), "pyroscope stopped", "server_address", opts.ServerAddress)
	}, nil
}

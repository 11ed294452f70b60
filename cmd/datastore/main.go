// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command datastore is a command-line client for document, object, and relational stores.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "golang.org/x/crypto/x509roots/fallback" // register root TLS certificates for minimal Docker images

	"github.com/FerretDB/datastore/build/version"
	"github.com/FerretDB/datastore/internal/util/ctxutil"
	"github.com/FerretDB/datastore/internal/util/debugbuild"
	"github.com/FerretDB/datastore/internal/util/logging"
	"github.com/FerretDB/datastore/internal/util/must"
	"github.com/FerretDB/datastore/internal/util/observability"
	"github.com/FerretDB/datastore/nosqlstore"
)

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
//
//nolint:lll // some tags are long
type cli struct {
	Version kong.VersionFlag `help:"Print version to stdout and exit." env:"-"`

	Config  string `default:"datastore.yaml" help:"Configuration file (YAML, JSON, or TOML)." type:"path"`
	Section string `default:"nosql_store"    help:"Configuration section for document store commands."`

	Log struct {
		Level  string `default:"${default_log_level}" help:"${help_log_level}"`
		Format string `default:"console"              help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`

	OtelTracesURL string `default:""      help:"OTLP/HTTP endpoint for traces; disabled if empty." name:"otel-traces-url"`
	MetricsDump   bool   `default:"false" help:"Dump metrics to stderr on exit."`

	Frameworks frameworksCmd `cmd:"" help:"List supported frameworks."`
	Ping       pingCmd       `cmd:"" help:"Connect to the configured document store."`
	Insert     insertCmd     `cmd:"" help:"Insert a JSON document or an array of documents."`
	Find       findCmd       `cmd:"" help:"Find documents."`
	Load       loadCmd       `cmd:"" help:"Load documents using the configured query."`
	Update     updateCmd     `cmd:"" help:"Update documents matching the filter."`
	Delete     deleteCmd     `cmd:"" help:"Delete documents matching the filter."`

	Objects struct {
		List objectsListCmd `cmd:"" help:"List objects."`
	} `cmd:"" help:"Object store commands."`

	SQL struct {
		Load sqlLoadCmd `cmd:"" help:"Load rows using the configured query."`
	} `cmd:"" help:"Relational store commands." name:"sql"`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	logFormats = []string{logging.FormatConsole, logging.FormatJSON}

	kongOptions = []kong.Option{
		kong.Vars{
			"default_log_level": defaultLogLevel().String(),

			"enum_log_format": strings.Join(logFormats, ","),

			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logFormats, "', '")),
			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),

			"version": version.Get().Version,
		},
		kong.DefaultEnvars("DATASTORE"),
		kong.Name("datastore"),
		kong.UsageOnError(),
	}
)

// defaultLogLevel returns the default log level.
func defaultLogLevel() zapcore.Level {
	if version.Get().DebugBuild {
		return zap.DebugLevel
	}

	return zap.InfoLevel
}

// runContext is passed to all commands.
type runContext struct {
	ctx     context.Context //nolint:containedctx // kong binds values by type
	cli     *cli
	l       *zap.Logger
	out     io.Writer
	metrics *nosqlstore.Metrics
}

func main() {
	var c cli
	kctx := kong.Parse(&c, kongOptions...)

	level, err := zapcore.ParseLevel(c.Log.Level)
	kctx.FatalIfErrorf(err)

	logging.Setup(level, c.Log.Format)
	l := zap.L()

	if _, err = maxprocs.Set(maxprocs.Logger(l.Sugar().Debugf)); err != nil {
		l.Sugar().Warnf("Failed to set GOMAXPROCS: %s.", err)
	}

	if debugbuild.Enabled {
		l.Info("This is debug build. The performance will be affected.")
	}

	ctx, stop := ctxutil.SigTerm(context.Background())

	err = run(ctx, kctx, &c, l, os.Stdout)

	stop()

	// to increase a chance of resource finalizers to spot problems
	if debugbuild.Enabled {
		runtime.GC()
		runtime.GC()
	}

	kctx.FatalIfErrorf(err)
}

// run sets up tracing and metrics and runs the selected command.
func run(ctx context.Context, kctx *kong.Context, c *cli, l *zap.Logger, out io.Writer) error {
	shutdown, err := observability.SetupOtel("datastore", c.OtelTracesURL)
	if err != nil {
		return err
	}

	if shutdown != nil {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				l.Warn("Failed to shutdown tracing", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	m := nosqlstore.NewMetrics()
	reg.MustRegister(m)

	err = kctx.Run(&runContext{
		ctx:     ctx,
		cli:     c,
		l:       l,
		out:     out,
		metrics: m,
	})

	if c.MetricsDump {
		dumpMetrics(reg, os.Stderr)
	}

	return err
}

// dumpMetrics dumps all gathered Prometheus metrics.
func dumpMetrics(g prometheus.Gatherer, w io.Writer) {
	mfs := must.NotFail(g.Gather())

	for _, mf := range mfs {
		must.NotFail(expfmt.MetricFamilyToText(w, mf))
	}
}

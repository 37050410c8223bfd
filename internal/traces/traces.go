/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package traces

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bisturi/tracksync/config"
)

// SetupOTelSDK installs a global tracer provider exporting over OTLP/HTTP. Without an
// endpoint nothing is installed and spans stay no-ops. The returned shutdown flushes
// pending spans and must be called before exit.
func SetupOTelSDK(ctx context.Context, cnf config.TracingConfig) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	if cnf.Endpoint == "" {
		return shutdown, nil
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cnf.ServiceName)))
	if err != nil {
		return shutdown, err
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cnf.Endpoint))
	if err != nil {
		return shutdown, errors.Join(err, shutdown(ctx))
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	logrus.WithFields(logrus.Fields{
		"endpoint": cnf.Endpoint,
		"service":  cnf.ServiceName,
	}).Debug("Tracing enabled")
	return shutdown, nil
}

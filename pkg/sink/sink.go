// Package sink delivers finished datasets to their consumers. The acquisition
// core produces the dataset and labels only; rendering happens elsewhere.
package sink

import (
	"errors"

	"github.com/itohio/stepresp/pkg/analysis"
	"github.com/itohio/stepresp/pkg/sample"
)

// Sink accepts a dataset together with its axis labels.
type Sink interface {
	Show(ds *sample.Dataset, xlabel, ylabel string) error
	Close() error
}

// Annotator is implemented by sinks that can carry step response metrics
// alongside the next dataset.
type Annotator interface {
	Annotate(r analysis.StepResponse)
}

var (
	_ Sink      = (*CSV)(nil)
	_ Sink      = (*MQTT)(nil)
	_ Sink      = Multi(nil)
	_ Annotator = (*MQTT)(nil)
	_ Annotator = Multi(nil)
)

// Multi fans a dataset out to every sink. All sinks are tried; errors are
// joined.
type Multi []Sink

// Show implements Sink.
func (m Multi) Show(ds *sample.Dataset, xlabel, ylabel string) error {
	var errs []error
	for _, s := range m {
		if err := s.Show(ds, xlabel, ylabel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Annotate forwards metrics to every member that accepts them.
func (m Multi) Annotate(r analysis.StepResponse) {
	for _, s := range m {
		if a, ok := s.(Annotator); ok {
			a.Annotate(r)
		}
	}
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package jobs defines the background work that hangs off the request path.
//
// Job is a closed set: every kind implements an unexported method that calls
// its own Handlers method, so a new kind cannot be added without also adding
// a handler for it.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a job on the wire.
type Kind string

const (
	KindLinkClicked   Kind = "link.clicked"
	KindMetadataFetch Kind = "metadata.fetch"
)

// ErrUnknownKind is returned by Decode for a kind this build does not know.
var ErrUnknownKind = errors.New("unknown job kind")

// Job is one unit of background work.
type Job interface {
	Kind() Kind
	dispatch(ctx context.Context, h Handlers) error
}

// LinkClicked asks for one click to be recorded against Code.
type LinkClicked struct {
	Code string `json:"code"`
}

func (LinkClicked) Kind() Kind { return KindLinkClicked }

func (j LinkClicked) dispatch(ctx context.Context, h Handlers) error {
	return h.HandleLinkClicked(ctx, j)
}

// MetadataFetch asks for the preview metadata of URL to be fetched and
// stored against LinkID.
type MetadataFetch struct {
	LinkID int64  `json:"linkId"`
	URL    string `json:"url"`
}

func (MetadataFetch) Kind() Kind { return KindMetadataFetch }

func (j MetadataFetch) dispatch(ctx context.Context, h Handlers) error {
	return h.HandleMetadataFetch(ctx, j)
}

// Handlers consumes every job kind. A returned error asks the queue to
// redeliver the job.
type Handlers interface {
	HandleLinkClicked(ctx context.Context, job LinkClicked) error
	HandleMetadataFetch(ctx context.Context, job MetadataFetch) error
}

// Handle routes job to the matching method of h.
func Handle(ctx context.Context, h Handlers, job Job) error {
	return job.dispatch(ctx, h)
}

// Dispatcher accepts jobs for asynchronous execution. Enqueue must not wait
// for the job to run.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) error
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes job with its kind tag.
func Encode(job Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s job: %w", job.Kind(), err)
	}
	return json.Marshal(envelope{Kind: job.Kind(), Data: data})
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (Job, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job envelope: %w", err)
	}

	switch env.Kind {
	case KindLinkClicked:
		var j LinkClicked
		if err := json.Unmarshal(env.Data, &j); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s job: %w", env.Kind, err)
		}
		return j, nil
	case KindMetadataFetch:
		var j MetadataFetch
		if err := json.Unmarshal(env.Data, &j); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s job: %w", env.Kind, err)
		}
		return j, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

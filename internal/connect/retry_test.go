package connect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/hop/internal/logger"
)

func fastOptions() Options {
	return Options{
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := WithRetry(context.Background(), "test", "localhost:0", fastOptions(), ping, logger.NewNop()); err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("ping calls = %d, want 3", calls)
	}
}

func TestWithRetryTimesOut(t *testing.T) {
	boom := errors.New("connection refused")
	opts := fastOptions()
	opts.ConnectTimeout = 50 * time.Millisecond

	err := WithRetry(context.Background(), "test", "localhost:0", opts, func(context.Context) error { return boom }, logger.NewNop())
	if !errors.Is(err, boom) {
		t.Errorf("WithRetry() error = %v, want wrapped %v", err, boom)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Options) {}, wantErr: false},
		{name: "zero connect timeout", mutate: func(o *Options) { o.ConnectTimeout = 0 }, wantErr: true},
		{name: "zero retry interval", mutate: func(o *Options) { o.RetryInterval = 0 }, wantErr: true},
		{name: "zero max wait", mutate: func(o *Options) { o.MaxWait = 0 }, wantErr: true},
		{name: "zero ping timeout", mutate: func(o *Options) { o.PingTimeout = 0 }, wantErr: true},
		{name: "negative warn threshold", mutate: func(o *Options) { o.WarnThreshold = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := fastOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

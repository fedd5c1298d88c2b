// Package dispatch hands finished audio over to the transcription stage.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"semefo/internal/config"
	"semefo/internal/logging"
	"semefo/internal/services"
)

// TranscriptionRequest is the message consumed by the transcription workers.
type TranscriptionRequest struct {
	Expediente string `json:"numero_expediente"`
	SessionID  int64  `json:"id_sesion"`
	Filename   string `json:"filename"`
	// JobID is the audio job that produced the file. It only feeds the
	// dedupe key and is not part of the payload.
	JobID int64 `json:"-"`
}

// MessageID is the broker-side dedupe key for the request.
func (r TranscriptionRequest) MessageID() string {
	return strings.Join([]string{r.Expediente, strconv.FormatInt(r.SessionID, 10), r.Filename, strconv.FormatInt(r.JobID, 10)}, "-")
}

// Dispatcher publishes transcription requests.
type Dispatcher interface {
	Publish(ctx context.Context, req TranscriptionRequest) error
	Close() error
}

// Noop drops every request. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, TranscriptionRequest) error { return nil }
func (Noop) Close() error                                        { return nil }

// Options configures the JetStream dispatcher.
type Options struct {
	URL      string
	Stream   string
	Subject  string
	Filename string
	Timeout  time.Duration
}

// JetStream publishes to a durable file-backed stream and waits for the ack.
type JetStream struct {
	opts   Options
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// New returns a Noop dispatcher when cfg has no broker URL and otherwise
// connects to the broker and ensures the stream exists.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Dispatcher, error) {
	if strings.TrimSpace(cfg.Dispatch.URL) == "" {
		return Noop{}, nil
	}
	return Connect(ctx, Options{
		URL:      cfg.Dispatch.URL,
		Stream:   cfg.Dispatch.Stream,
		Subject:  cfg.Dispatch.Subject,
		Filename: cfg.Dispatch.Filename,
		Timeout:  time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
	}, logger)
}

// Connect dials the broker and creates or updates the stream.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*JetStream, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger = logging.NewComponentLogger(logger, "dispatch")
	nc, err := nats.Connect(opts.URL,
		nats.Name("semefo-worker"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(opts.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("broker connection lost", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("broker connection restored", logging.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "dispatch", "connect", opts.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, services.Wrap(services.ErrTransient, "dispatch", "jetstream", opts.URL, err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        opts.Stream,
		Description: "Audio files awaiting transcription",
		Subjects:    []string{opts.Subject},
		Storage:     jetstream.FileStorage,
		Duplicates:  10 * time.Minute,
	}); err != nil {
		nc.Close()
		return nil, services.Wrap(services.ErrTransient, "dispatch", "stream", opts.Stream, err)
	}
	logger.Info("transcription dispatcher ready",
		logging.String("url", opts.URL),
		logging.String("stream", opts.Stream),
		logging.String("subject", opts.Subject),
	)
	return &JetStream{opts: opts, nc: nc, js: js, logger: logger}, nil
}

// Publish sends req and waits for the stream to persist it. A request whose
// filename is empty gets the configured default.
func (d *JetStream) Publish(ctx context.Context, req TranscriptionRequest) error {
	if req.Filename == "" {
		req.Filename = d.opts.Filename
	}
	if req.Expediente == "" || req.SessionID <= 0 {
		return services.Wrap(services.ErrValidation, "dispatch", "publish", fmt.Sprintf("incomplete request %+v", req), nil)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return services.Wrap(services.ErrValidation, "dispatch", "publish", "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	ack, err := d.js.Publish(ctx, d.opts.Subject, data, jetstream.WithMsgID(req.MessageID()))
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, "dispatch", "publish", d.opts.Subject, err)
	}
	logging.WithContext(ctx, d.logger).Info("transcription requested",
		logging.String(logging.FieldEventType, "dispatch_published"),
		logging.String(logging.FieldExpediente, req.Expediente),
		logging.Int64(logging.FieldSessionID, req.SessionID),
		logging.String("stream", ack.Stream),
		logging.Uint64("sequence", ack.Sequence),
		logging.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

// Ping reports whether the broker connection is usable.
func (d *JetStream) Ping(ctx context.Context) error {
	if !d.nc.IsConnected() {
		return services.Wrap(services.ErrTransient, "dispatch", "ping", "not connected", nil)
	}
	if _, err := d.js.Stream(ctx, d.opts.Stream); err != nil {
		return services.Wrap(services.ErrTransient, "dispatch", "ping", d.opts.Stream, err)
	}
	return nil
}

// Close drains the connection.
func (d *JetStream) Close() error {
	if d == nil || d.nc == nil {
		return nil
	}
	return d.nc.Drain()
}

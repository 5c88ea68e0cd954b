// Package remote moves serialized batch frames between processes over
// ZeroMQ PUSH/PULL sockets. It is how the producer stage runs with real
// process isolation: augpipe-feed generates and serializes batches in its
// own OS process and this package streams them into the consumer pipeline.
package remote

import (
	"context"
	"io"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"augpipe-go/internal/batch"
	"augpipe-go/internal/loader"
	"augpipe-go/internal/rng"
)

// Source connects a PULL socket to endpoint and returns a channel of batch
// frames. Messages that do not carry a valid frame header are dropped with a
// log line. The channel closes when ctx is cancelled or a sentinel frame
// arrives.
func Source(ctx context.Context, endpoint string, log *zap.Logger) (<-chan []byte, error) {
	if log == nil {
		log = zap.NewNop()
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, errors.Wrap(err, "create pull socket")
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "connect %s", endpoint)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				log.Warn("remote recv failed", zap.Error(err))
				continue
			}
			if batch.IsDone(msg) {
				log.Info("remote source finished")
				return
			}
			if _, err := batch.Decode(msg); err != nil {
				log.Warn("remote frame dropped", zap.Error(err))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	return out, nil
}

// Generator adapts a Source channel to the loader's Generator interface, so
// a remote feed plugs into the pipeline exactly like a local generator. It
// re-decodes frames into batches; the loader serializes them again on its
// own queue, keeping the two transports independent.
func Generator(frames <-chan []byte) loader.Generator {
	return loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		frame, ok := <-frames
		if !ok {
			return nil, io.EOF
		}
		return batch.Decode(frame)
	})
}

// Sink binds a PUSH socket to endpoint and sends batch frames to it.
type Sink struct {
	socket *zmq4.Socket
}

// NewSink binds the given endpoint.
func NewSink(endpoint string) (*Sink, error) {
	socket, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, errors.Wrap(err, "create push socket")
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "bind %s", endpoint)
	}
	return &Sink{socket: socket}, nil
}

// Send transmits one frame.
func (s *Sink) Send(frame []byte) error {
	_, err := s.socket.SendBytes(frame, 0)
	return errors.Wrap(err, "send frame")
}

// SendDone transmits the terminal sentinel so the receiving source shuts
// down cleanly.
func (s *Sink) SendDone() error {
	return s.Send(batch.EncodeDone())
}

// Close releases the socket.
func (s *Sink) Close() error {
	return s.socket.Close()
}

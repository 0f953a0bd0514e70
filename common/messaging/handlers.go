package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// RunRequestHandler handles a decoded run request. Returning an error naks
// the message so it is redelivered.
type RunRequestHandler func(ctx context.Context, req RunRequest) error

// Stopper stops a subscription or a consumer.
type Stopper interface {
	Stop()
}

type subscriptionStopper struct {
	sub *nats.Subscription
}

func (s subscriptionStopper) Stop() {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Str("subject", s.sub.Subject).Msg("Failed to unsubscribe")
	}
}

// DecodeRunRequest parses a run request body. An empty body is a request
// with default values.
func DecodeRunRequest(data []byte) (RunRequest, error) {
	var req RunRequest
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decoding run request: %w", err)
	}
	if req.Pages < 0 {
		return req, fmt.Errorf("pages must not be negative, got %d", req.Pages)
	}
	return req, nil
}

// ConsumeRunRequests feeds run requests to handler until ctx is done. With
// JetStream a durable consumer is used; otherwise a core queue subscription.
func ConsumeRunRequests(ctx context.Context, client *NatsBroker, handler RunRequestHandler) (Stopper, error) {
	if !client.JetStream() {
		sub, err := client.Subscribe(SubjectRunRequest, func(msg *nats.Msg) {
			req, err := DecodeRunRequest(msg.Data)
			if err != nil {
				log.Error().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed run request")
				return
			}
			if err := handler(ctx, req); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("Run request rejected")
			}
		})
		if err != nil {
			return nil, err
		}
		return subscriptionStopper{sub: sub}, nil
	}

	consumer, err := GetJetStreamConsumer(ctx, client, client.StreamName(), SubjectRunRequest)
	if err != nil {
		return nil, err
	}

	return client.Consume(consumer, func(msg jetstream.Msg) {
		req, err := DecodeRunRequest(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("Dropping malformed run request")
			if termErr := msg.Term(); termErr != nil {
				log.Warn().Err(termErr).Msg("Failed to terminate message")
			}
			return
		}
		if err := handler(ctx, req); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("Run request rejected, will be redelivered")
			if nakErr := msg.NakWithDelay(runRequestRedelivery); nakErr != nil {
				log.Warn().Err(nakErr).Msg("Failed to nak message")
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn().Err(ackErr).Msg("Failed to ack message")
		}
	})
}

// GetJetStreamConsumer returns a durable consumer filtered on subject
func GetJetStreamConsumer(ctx context.Context, client *NatsBroker, streamName, subject string) (jetstream.Consumer, error) {
	stream, err := EnsureStream(ctx, client, streamName, []string{subject})
	if err != nil {
		return nil, err
	}

	consumerName := "consumer_" + strings.ReplaceAll(subject, ".", "-")
	consumerConfig := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("stream", streamName).
		Str("subject", subject).
		Str("consumer", consumerName).
		Msg("Got JetStream pull consumer")

	return consumer, nil
}

// EnsureStream ensures a stream exists with the specified subjects
func EnsureStream(ctx context.Context, client *NatsBroker, name string, subjects []string) (jetstream.Stream, error) {
	stream, err := client.GetStream(ctx, name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
			log.Error().Err(err).Str("stream_name", name).Msg("Failed to get stream for unknown reasons")
			return nil, err
		}
		return client.CreateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: subjects,
		})
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	config := info.Config
	missing := missingSubjects(config.Subjects, subjects)
	if len(missing) == 0 {
		log.Debug().Str("stream_name", name).Msg("No new subjects to add to stream")
		return stream, nil
	}

	config.Subjects = append(config.Subjects, missing...)
	log.Info().Strs("subjects", config.Subjects).Str("stream_name", name).Msg("Updating stream with new subjects")
	return client.CreateStream(ctx, config)
}

// missingSubjects returns the wanted subjects not already covered by have.
// A wildcard prefix such as "tesauro.>" covers every subject under it.
func missingSubjects(have, want []string) []string {
	var out []string
	for _, w := range want {
		covered := false
		for _, h := range have {
			if h == w || (strings.HasSuffix(h, ">") && strings.HasPrefix(w, strings.TrimSuffix(h, ">"))) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, w)
		}
	}
	return out
}

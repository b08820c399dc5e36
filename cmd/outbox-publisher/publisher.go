package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// gcpPublisher adapts a Pub/Sub publisher. With ordering on, a failed publish
// pauses its ordering key, so the key is resumed before the row is retried.
type gcpPublisher struct {
	pub      *gcppubsub.Publisher
	ordering bool
}

func wrapPublisher(pub *gcppubsub.Publisher, ordering bool) publisher {
	if pub == nil {
		return nil
	}
	return &gcpPublisher{pub: pub, ordering: ordering}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if !p.ordering {
		msg.OrderingKey = ""
	}
	return &gcpResult{res: p.pub.Publish(ctx, msg), pub: p.pub, key: msg.OrderingKey}
}

type gcpResult struct {
	res *gcppubsub.PublishResult
	pub *gcppubsub.Publisher
	key string
}

func (r *gcpResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}

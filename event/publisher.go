// Package event is a small in-process publish/subscribe hub used to observe
// run lifecycle transitions.
package event

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/runnermetrics/log"
)

var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrTopicExists   = errors.New("topic already exists")
	ErrPublishTimeout = errors.New("publish timed out")
)

// Subscriber receives the payload of a published event.
type Subscriber func(param any)

// Publisher includes multiple topics.
type Publisher struct {
	lock   sync.RWMutex
	topics map[string]*Topic
}

// NewPublisher creates a publisher with DefaultTopics, each bounded by timeout.
func NewPublisher(timeout time.Duration) *Publisher {
	p := &Publisher{topics: make(map[string]*Topic)}
	for _, name := range DefaultTopics {
		_ = p.NewTopic(name, timeout)
	}
	return p
}

// NewTopic must create a topic before you can initiate a subscription.
func (p *Publisher) NewTopic(topicName string, timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.topics[topicName]; ok {
		return fmt.Errorf("%w: %s", ErrTopicExists, topicName)
	}
	p.topics[topicName] = &Topic{
		timeout:     timeout,
		subscribers: []Subscriber{},
	}
	return nil
}

// RegisterSubscriber registers a subscriber.
func (p *Publisher) RegisterSubscriber(topicName string, fn Subscriber) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	topic, ok := p.topics[topicName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, topicName)
	}

	topic.subscribers = append(topic.subscribers, fn)
	log.Debug().Str("topic", topicName).Int("num", len(topic.subscribers)).Msg("add subscriber")
	return nil
}

// Publish runs every subscriber of topicName concurrently with i and waits
// for them, up to the topic timeout. Subscribers still running at the
// timeout are left to finish on their own.
func (p *Publisher) Publish(topicName string, i any) error {
	p.lock.RLock()
	topic, ok := p.topics[topicName]
	var subs []Subscriber
	var timeout time.Duration
	if ok {
		subs = append(subs, topic.subscribers...)
		timeout = topic.timeout
	}
	p.lock.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, topicName)
	}
	if len(subs) == 0 {
		return nil
	}

	log.Debug().Str("topic", topicName).Int("subscribers", len(subs)).Msg("publish event")

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("topic", topicName).Any("panic", r).Msg("subscriber panicked")
				}
			}()
			sub(i)
		}()
	}

	if timeout <= 0 {
		wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		log.Warn().Str("topic", topicName).Dur("timeout", timeout).Msg("publish timed out")
		return fmt.Errorf("%w: %s after %s", ErrPublishTimeout, topicName, timeout)
	}
}

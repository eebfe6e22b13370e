package subscription

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"marketsync/logger"
	"marketsync/models"
)

// Sender is the upstream control surface the registry drives. Implemented by
// the socket manager.
type Sender interface {
	Send(topic, action string) error
}

// Callback receives every inbound frame for a subscribed topic.
type Callback func(models.Envelope)

type entry struct {
	callbacks map[string]Callback
}

// Registry tracks per-topic subscriber refcounts. The first subscriber for a
// topic emits an upstream subscribe, the last release emits an unsubscribe.
// Frames are fanned out to every registered callback.
type Registry struct {
	mu        sync.RWMutex
	transport Sender
	topics    map[string]*entry
	log       *logger.Log
}

func NewRegistry(transport Sender) *Registry {
	return &Registry{
		transport: transport,
		topics:    make(map[string]*entry),
		log:       logger.GetLogger(),
	}
}

// Subscribe registers a callback for a topic and returns its release
// function. Releasing twice is a no-op; components may unmount and
// immediately remount, so idempotence here is a correctness requirement.
func (r *Registry) Subscribe(topic string, cb Callback) (func(), error) {
	if _, err := models.ParseTopic(topic); err != nil {
		return nil, err
	}

	id := uuid.NewString()

	r.mu.Lock()
	e, ok := r.topics[topic]
	if !ok {
		e = &entry{callbacks: make(map[string]Callback)}
		r.topics[topic] = e
	}
	e.callbacks[id] = cb
	first := !ok
	refs := len(e.callbacks)
	r.mu.Unlock()

	log := r.log.WithComponent("subscription_registry").WithFields(logger.Fields{"topic": topic, "refs": refs})
	if first {
		log.Info("first subscriber, subscribing upstream")
		if err := r.transport.Send(topic, "subscribe"); err != nil {
			log.WithError(err).Warn("upstream subscribe failed")
		}
	} else {
		log.Debug("subscriber added")
	}

	released := false
	return func() {
		r.mu.Lock()
		if released {
			r.mu.Unlock()
			return
		}
		released = true
		e, ok := r.topics[topic]
		if !ok {
			r.mu.Unlock()
			return
		}
		delete(e.callbacks, id)
		last := len(e.callbacks) == 0
		if last {
			delete(r.topics, topic)
		}
		r.mu.Unlock()

		if last {
			r.log.WithComponent("subscription_registry").WithFields(logger.Fields{"topic": topic}).Info("last subscriber gone, unsubscribing upstream")
			if err := r.transport.Send(topic, "unsubscribe"); err != nil {
				r.log.WithComponent("subscription_registry").WithFields(logger.Fields{"topic": topic}).WithError(err).Warn("upstream unsubscribe failed")
			}
		}
	}, nil
}

// Dispatch fans an inbound frame out to the topic's subscribers. Unknown
// topics are dropped silently; a frame can legitimately race a final
// unsubscribe.
func (r *Registry) Dispatch(env models.Envelope) {
	r.mu.RLock()
	e, ok := r.topics[env.Topic]
	var callbacks []Callback
	if ok {
		callbacks = make([]Callback, 0, len(e.callbacks))
		for _, cb := range e.callbacks {
			callbacks = append(callbacks, cb)
		}
	}
	r.mu.RUnlock()

	for _, cb := range callbacks {
		cb(env)
	}
}

// Refcount returns the number of live subscribers for a topic.
func (r *Registry) Refcount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.topics[topic]; ok {
		return len(e.callbacks)
	}
	return 0
}

// ActiveTopics lists every topic with at least one subscriber, sorted.
func (r *Registry) ActiveTopics() []string {
	r.mu.RLock()
	topics := make([]string, 0, len(r.topics))
	for t := range r.topics {
		topics = append(topics, t)
	}
	r.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// Refcounts returns the live topic -> subscriber-count map for status
// reporting.
func (r *Registry) Refcounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.topics))
	for t, e := range r.topics {
		out[t] = len(e.callbacks)
	}
	return out
}

// Replay re-emits an upstream subscribe for every active topic. Invoked by
// the socket manager after a reconnect.
func (r *Registry) Replay() {
	topics := r.ActiveTopics()
	if len(topics) == 0 {
		return
	}
	r.log.WithComponent("subscription_registry").WithFields(logger.Fields{"topics": topics}).Info("replaying subscriptions after reconnect")
	for _, t := range topics {
		if err := r.transport.Send(t, "subscribe"); err != nil {
			r.log.WithComponent("subscription_registry").WithFields(logger.Fields{"topic": t}).WithError(err).Warn("replay subscribe failed")
		}
	}
}

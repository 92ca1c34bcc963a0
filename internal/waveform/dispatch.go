package waveform

import (
	"sync"

	"github.com/voxplay/voxplay/playback"
)

// dispatcher delivers events in order on its own goroutine so that
// handlers may call back into the renderer.
type dispatcher struct {
	mu      sync.Mutex
	handler func(playback.RendererEvent)
	pending []playback.RendererEvent
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) setHandler(fn func(playback.RendererEvent)) {
	d.mu.Lock()
	d.handler = fn
	d.mu.Unlock()
}

// push queues ev without blocking. Events pushed after close are dropped.
func (d *dispatcher) push(ev playback.RendererEvent) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, ev)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for range d.wake {
		for {
			d.mu.Lock()
			batch := d.pending
			d.pending = nil
			fn := d.handler
			d.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			if fn == nil {
				continue
			}
			for _, ev := range batch {
				fn(ev)
			}
		}
	}
}

// close delivers what is queued and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.wake)
	<-d.done
}

package search

import (
	"context"
	"sync"

	"github.com/saltyorg/triviasearch/internal/snapshot"
)

// View is what a consumer sees of the snapshot at a point in time.
type View struct {
	Initialized bool
	Handle      *snapshot.Handle
}

// Binding attaches one consumer to a Loader. It triggers the load, keeps
// the handle once it arrives and calls onChange at that moment.
type Binding struct {
	loader   *snapshot.Loader
	onChange func(View)

	mu     sync.RWMutex
	handle *snapshot.Handle
	sub    snapshot.Subscription
	bound  bool
}

// Bind triggers loader and subscribes to it. onChange may be nil.
func Bind(loader *snapshot.Loader, onChange func(View)) *Binding {
	b := &Binding{
		loader:   loader,
		onChange: onChange,
		bound:    true,
	}

	loader.Trigger()
	sub := loader.Subscribe(b.receive)

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	return b
}

func (b *Binding) receive(h *snapshot.Handle) {
	b.mu.Lock()
	if !b.bound {
		b.mu.Unlock()
		return
	}
	b.handle = h
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(View{Initialized: true, Handle: h})
	}
}

// View returns the current view.
func (b *Binding) View() View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return View{Initialized: b.handle != nil, Handle: b.handle}
}

// Results searches the bound handle. Before the snapshot is loaded it
// returns an empty slice.
func (b *Binding) Results(ctx context.Context, query string) ([]Result, error) {
	return Results(ctx, b.View().Handle, query)
}

// Release detaches the binding from its loader. The handle itself stays
// owned by the loader.
func (b *Binding) Release() {
	b.mu.Lock()
	b.bound = false
	b.handle = nil
	sub := b.sub
	b.mu.Unlock()

	b.loader.Unsubscribe(sub)
}

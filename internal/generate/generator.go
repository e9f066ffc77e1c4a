package generate

import "context"

// Generator is the model-streaming transport. Stream starts one generation
// call for the given prompt and returns a channel of raw text chunks plus a
// channel carrying at most one terminal error. The chunk channel closes when
// the call completes. Cancelling the context aborts the call; consumers must
// not treat cancellation as a transport failure.
type Generator interface {
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

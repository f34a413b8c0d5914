package gisnav

import "context"

// Run executes the main estimation loop: it drains frame snapshots from the
// input channel and runs one estimation cycle per frame until the context is
// cancelled or the channel closes. Cycle failures never stop the loop.
func (p *Pipeline) Run(ctx context.Context, frames <-chan FrameInput) error {
	p.logger.Info("Starting estimation loop")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down")
			return nil
		case frame, ok := <-frames:
			if !ok {
				p.logger.Info("Frame source closed")
				return nil
			}
			p.ProcessFrame(ctx, frame)
		}
	}
}

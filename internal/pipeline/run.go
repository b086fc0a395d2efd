package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/pbaille/timeclock/internal/domain"
)

// ErrNoCode is reported by frame sources when a frame holds no readable code
var ErrNoCode = errors.New("no code in frame")

// noCodeText is the decoder message for frames without a code
const noCodeText = "No MultiFormat Readers were able to detect the code"

// Frame is one read from a scanner: decoded text or a decoder error
type Frame struct {
	Text   string
	Source string
	Err    error
}

// IsNoise reports decoder errors that only mean "nothing to read yet"
func IsNoise(err error) bool {
	return errors.Is(err, ErrNoCode) || strings.Contains(err.Error(), noCodeText)
}

// Run feeds frames through the pipeline until ctx is cancelled or frames
// is closed. The gate is stopped on return. out receives one Outcome per
// admitted read and per reportable frame error.
func (p *Pipeline) Run(ctx context.Context, frames <-chan Frame, out func(Outcome)) error {
	defer p.gate.Stop()

	for {
		select {
		case <-ctx.Done():
			out(Outcome{Kind: KindInfo, Message: "Scanner stopped", Dismiss: SuccessDismiss})
			return ctx.Err()
		case fr, ok := <-frames:
			if !ok {
				out(Outcome{Kind: KindInfo, Message: "Scanner stopped", Dismiss: SuccessDismiss})
				return nil
			}
			if fr.Err != nil {
				if IsNoise(fr.Err) {
					continue
				}
				p.log.Warnf("scanner: %v", fr.Err)
				out(Outcome{Kind: KindError, Message: fr.Err.Error(), Err: fr.Err})
				continue
			}
			if strings.TrimSpace(fr.Text) == "" {
				continue
			}

			source := fr.Source
			if source == "" {
				source = domain.SourceQRScan
			}
			if o, ok := p.Handle(ctx, NewEvent(fr.Text, source)); ok {
				out(o)
			}
		}
	}
}

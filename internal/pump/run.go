package pump

import "github.com/aerodrop/aerodrop/internal/protocol"

// RunAsync starts p.Run in its own goroutine and reports the outcome
// back to sender. It is the glue the session manager uses to wire a
// Producer to a protocol.Sender's ProducerStarter callback:
//
//	sender.StartProducer = func(epoch uint64, i int, off int64) {
//	    pump.RunAsync(producer, sender, epoch, i, off)
//	}
func RunAsync(p *Producer, sender *protocol.Sender, epoch uint64, startIndex int, startOffset int64) {
	go func() {
		completed, err := p.Run(epoch, startIndex, startOffset)
		switch {
		case err != nil:
			sender.ProducerFailed(epoch)
		case completed:
			_ = sender.ProducerCompleted(epoch)
		default:
			// epoch advanced out from under the loop; the session has
			// already moved on (cancelled or resumed), nothing to report.
		}
	}()
}

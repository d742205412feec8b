// Package relay moves bytes between two established connections.
//
// Pipe is the relay loop: it copies inbound→outbound (Upstream) and
// outbound→inbound (Downstream) concurrently. The first end-of-stream or
// I/O error stops both directions, as does cancelling the caller's context.
// Both connections are always closed before Pipe returns.
//
// # Inspection Hook
//
// A Hook is the single extension point. It is called once per chunk, per
// direction, before the chunk is written, and may return the chunk as-is
// (Identity), a replacement, or an error that tears the pair down. Hooks
// must not retain the chunk slice after returning.
//
// # Memory transport
//
// MemoryListener is an in-process net.Listener backed by net.Pipe. It lets
// tests exercise the relay and the server without opening sockets.
//
// # Usage Example
//
//	inbound, _ := listener.Accept()
//	outbound, _ := net.Dial("tcp", "backend:8080")
//
//	res, err := relay.Pipe(ctx, inbound, outbound, &relay.Options{
//	    Hook: relay.HexDump(logger, 32),
//	})
//	if err != nil {
//	    var ioErr *relay.RelayIOError
//	    if errors.As(err, &ioErr) {
//	        log.Printf("%s %s failed: %v", ioErr.Direction, ioErr.Op, ioErr.Err)
//	    }
//	}
//	log.Printf("up=%d down=%d", res.BytesUp, res.BytesDown)
package relay

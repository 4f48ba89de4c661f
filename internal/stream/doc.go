// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes a streamed model response into text tokens.
//
// A response body arrives as raw byte chunks of unpredictable size. The
// package turns those chunks into an ordered, lazy, cancellable sequence
// of text tokens in three steps:
//
//   - ChunkDecoder converts bytes to text, holding back an incomplete
//     UTF-8 sequence until the rest of it arrives.
//   - A Framer reassembles complete JSON documents from the text, no
//     matter where the chunk boundaries fall. Two strategies exist because
//     the service uses two wire formats: LineFramer for Server-Sent Events
//     ("data: {...}" lines) and BraceFramer for bare concatenated objects.
//   - Sequencer pulls chunks from a Transport, feeds the framer, parses
//     each unit and yields the text found at the token path.
//
// # Usage
//
//	framer, _ := stream.NewFramer(stream.StrategyLine)
//	seq := stream.NewSequencer(transport, framer, payload)
//	defer seq.Close()
//	for token, err := range seq.Tokens(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(token)
//	}
//
// # Errors
//
// Malformed units and units without text are skipped and logged; they
// never end the stream. A non-success status from the transport ends the
// stream with a *TransportError. Cancellation ends the stream cleanly:
// Next returns io.EOF and Outcome reports OutcomeCancelled.
package stream

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini connects npchat to the Gemini streamGenerateContent API.
//
// Client implements stream.Transport and is the stream factory: each call
// to StartStream builds the request body from the conversation history
// and returns a fresh stream.Sequencer with its own framer.
//
// The framing strategy also selects the wire format. StrategyLine asks the
// service for Server-Sent Events (alt=sse); StrategyBrace reads the plain
// streamed JSON array.
//
// # Usage
//
//	client := gemini.NewClient(apiKey).WithModel("gemini-2.5-flash")
//	seq, err := client.StartStream(ctx, conv.History())
//	if err != nil {
//	    return err
//	}
//	for token, err := range seq.Tokens(ctx) {
//	    ...
//	}
//
// The API key travels in the x-goog-api-key header. It is never placed in
// the URL and never logged.
package gemini

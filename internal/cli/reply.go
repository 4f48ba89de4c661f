// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"

	"github.com/jeranaias/npchat/internal/metrics"
	"github.com/jeranaias/npchat/internal/model"
	"github.com/jeranaias/npchat/internal/stream"
	"github.com/jeranaias/npchat/internal/ui/chat"
)

// streamReply adds text as a user turn, streams the assistant reply to out
// as tokens arrive and settles the reply in conv. It returns the stream
// stats and the failure, if the stream failed. A cancelled stream returns
// a nil error; callers check stats.Outcome.
func streamReply(ctx context.Context, client chat.Streamer, m *metrics.Metrics,
	conv *model.Conversation, text string, out io.Writer) (stream.Stats, error) {

	conv.AddUser(text)
	reply := conv.StartAssistant()

	seq, err := client.StartStream(ctx, conv.History())
	if err != nil {
		conv.Discard(reply.ID)
		return stream.Stats{}, err
	}

	done := m.Track(client.Model())
	var streamErr error
	for token, err := range seq.Tokens(ctx) {
		if err != nil {
			streamErr = err
			break
		}
		conv.AppendToken(reply.ID, token)
		if _, err := io.WriteString(out, token); err != nil {
			// Breaking closes the sequencer, which ends the stream as cancelled.
			streamErr = err
			break
		}
	}

	stats := seq.Stats()
	done(stats)
	settleReply(conv, reply.ID, stats.Outcome)
	return stats, streamErr
}

// settleReply finishes, interrupts or discards a reply by outcome. Empty
// replies are never kept.
func settleReply(conv *model.Conversation, id string, outcome stream.Outcome) {
	msg, ok := conv.Get(id)
	if !ok {
		return
	}
	switch {
	case msg.Text == "":
		conv.Discard(id)
	case outcome == stream.OutcomeCompleted:
		conv.Finish(id)
	default:
		conv.Interrupt(id)
	}
}

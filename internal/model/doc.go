// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: Ordered chat history, safe for concurrent use
//   - Message: Snapshot of one turn with role, text and feedback
//   - Role: Message role enumeration (user, assistant)
//
// # Usage
//
// A conversation starts with a scripted welcome turn. The welcome is shown
// to the user but is never sent to the model:
//
//	conv := model.NewConversation("Hello! How can I help?")
//	conv.AddUser("What is a goroutine?")
//	reply := conv.StartAssistant()
//	conv.AppendToken(reply.ID, "A goroutine is")
//	conv.Finish(reply.ID)
package model

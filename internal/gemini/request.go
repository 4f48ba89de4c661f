// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"github.com/jeranaias/npchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Part is one piece of content. Only text parts are sent.
type Part struct {
	Text string `json:"text"`
}

// Content is a single turn, or the system instruction when Role is empty.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	CandidateCount int     `json:"candidateCount"`
	Temperature    float64 `json:"temperature"`
}

// Request is the streamGenerateContent request body.
type Request struct {
	Contents          []Content        `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
}

// roleModel is the service's name for the assistant role.
const roleModel = "model"

// apiRole maps a conversation role to the role the service expects.
func apiRole(r model.Role) string {
	if r == model.RoleAssistant {
		return roleModel
	}
	return string(r)
}

// =============================================================================
// REQUEST BUILDING
// =============================================================================

// BuildRequest converts conversation history into a request body.
// Scripted turns, replies still streaming and empty turns are left out.
func (c *Client) BuildRequest(history []model.Message) Request {
	req := Request{
		Contents: make([]Content, 0, len(history)),
		GenerationConfig: GenerationConfig{
			CandidateCount: c.candidateCount,
			Temperature:    c.temperature,
		},
	}

	for _, msg := range history {
		if msg.Scripted || msg.Streaming || msg.Text == "" {
			continue
		}
		req.Contents = append(req.Contents, Content{
			Role:  apiRole(msg.Role),
			Parts: []Part{{Text: msg.Text}},
		})
	}

	if c.systemInstruction != "" {
		req.SystemInstruction = &Content{
			Parts: []Part{{Text: c.systemInstruction}},
		}
	}

	return req
}

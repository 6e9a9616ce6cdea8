/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package providers reads LLM span fields out of vendor SDK responses.
//
// Each From function maps one response shape onto an LLMResult holding the
// call id, model, assistant output and token usage:
//
//	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
//	if err != nil {
//		code, _ := providers.StatusCode(err)
//		...
//	}
//	r := providers.FromGenAI(resp)
//	l.AddLLMSpan(input, r.Output, r.SpanOptions()...)
//
// CallIDExtractors plugs the same shapes into a tracker.Tracker so that LLM
// start and end callbacks correlate on the provider's response id.
package providers

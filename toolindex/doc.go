// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package toolindex maintains the catalog of research tools and a
// BM25 (Okapi) relevance index over their descriptions. The registry
// is the single source of truth for "what tools exist"; the discovery
// gateway queries it so that clients load only the tools a task
// actually needs instead of the full catalog.
//
// Registration is expected from a single coordinating goroutine at
// startup; reads (Search, Get, Count) are safe to call freely.
package toolindex

// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package streamhop implements a streaming HTTP/1.x forward proxy.
//
// Each accepted client connection is paired with one upstream
// connection selected by the request Host header. Bytes flow between
// the pair through two fixed-size rings whose ownership is swapped
// back and forth instead of copied; request and response heads are
// parsed and rewritten in place as they stream through. Sessions are
// driven by per-worker epoll reactors and allocated from bounded
// per-worker pools.
package streamhop

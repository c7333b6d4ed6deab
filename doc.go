// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package brew manages the process-wide execution state of a multi-solver
// training run: execution mode, per-thread device contexts, lane streams,
// native engine handles, random generators and shared scratch workspaces.
//
// Solver threads reach their resources through package accessors keyed to
// the calling OS thread:
//
//	s := brew.ThreadStream(0)       // compute lane
//	h := brew.BLAS(0)               // engine handle on that lane
//	r := brew.ThreadRNG()           // thread generator
//
// A context is built lazily on first access and cached for the life of
// the thread, so accessors are cheap after warm-up. Threads that target
// several devices bind with BindDevice and get one context per device.
//
// Determinism is opt-in: SetRootSeed installs a seed lineage and NextSeed
// derives per-solver seeds from it in call order. Without a root seed
// every generator is entropy seeded and runs are not reproducible.
//
// Misconfiguration that would corrupt execution state, such as an unknown
// lane group or a device outside the inventory, faults immediately with a
// *FatalError panic. Recoverable conditions, allocation failures above
// all, come back as ordinary errors.
package brew

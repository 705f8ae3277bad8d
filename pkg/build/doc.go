// Package build orchestrates multi-project builds.
//
// A Build owns the build-wide configuration and the ledger. Build.Build(name)
// returns at once when the ledger records name as built. Otherwise it resolves
// name to a Project, which:
//
//  1. records every non-ordinary dependency group (e.g. "build-only") in the
//     ledger under its kind, without building anything;
//  2. builds its ordinary dependencies concurrently and waits for all of them;
//  3. takes the project lock, re-checks the ledger, runs the build action in
//     the project root with the composed environment, records the project
//     on success and releases the lock.
//
// Each top-level call is a run with its own ID. A run detects dependency
// cycles from the chain of projects that led to a dependency and fails with a
// circular dependency error naming that chain.
//
// Successful dependencies stay recorded when a sibling or the dependent
// fails, so the next run resumes where this one stopped.
//
// Errors are *BuildError values; use errors.Is with the Err* sentinels or the
// IsX helpers to tell kinds apart:
//
//	b, err := build.New(ctx, root, build.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	if err := b.Build(ctx, "app"); errors.Is(err, build.ErrCircularDependency) {
//		...
//	}
package build

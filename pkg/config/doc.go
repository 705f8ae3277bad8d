// Package config loads the manifests that describe a pallet build root.
//
// # Overview
//
// A build root holds one build manifest and any number of projects. Each project
// lives in its own directory with a project manifest and a build script:
//
//	<root>/pallet.yaml            build manifest (prefix, host, environment, projects)
//	<root>/scripts/<name>/build.sh centralized build scripts, keyed by project name
//	<root>/libs/zlib/project.yaml project manifest (dependencies, environment, script)
//	<root>/libs/zlib/build.sh     project-local build script
//
// Manifests may be written in YAML (.yaml, .yml) or CUE (.cue). Both formats decode
// into the same structures and are validated with struct tags.
//
// # Build Manifest
//
//	prefix: /opt/stack
//	host: x86_64-linux-gnu
//	environment:
//	  - name: CFLAGS
//	    value: -O2
//	projects:
//	  zlib: libs/zlib
//	  openssl: libs/openssl
//
// # Project Manifest
//
//	name: openssl
//	dependencies:
//	  ordinary: [zlib]
//	  build-only: [perl]
//	environment:
//	  - name: CFLAGS
//	    value: -O3
//	script: build.sh
//
// Dependencies of kind "ordinary" are built first. Any other kind names a
// precondition that is recorded as satisfied without being built.
//
// # Environment Overlays
//
// Environment entries are ordered. When the same name appears more than once the
// later entry wins, and a project's overlay is applied on top of the build-wide one.
package config

// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package errors holds the error taxonomy shared by the export and
// import sides of a migration. Missing roots are reported with the
// generic juju/errors NotFound kind; target store failures are
// annotated and propagated as themselves, never translated.
package errors

import "github.com/juju/errors"

const (
	// Unresolvable is raised when an entity body is needed but not
	// available: at export time a non-optional dependency whose body
	// cannot be retrieved, at import time a mapping that must create
	// or update but carries no reference body.
	Unresolvable = errors.ConstError("unresolvable")

	// AmbiguousTarget is raised when a matcher selects more than one
	// entity on the target system.
	AmbiguousTarget = errors.ConstError("ambiguous target")

	// PolicyViolation is raised when a FailOnNew or FailOnExisting
	// constraint turns an otherwise tolerated outcome into a failure.
	PolicyViolation = errors.ConstError("policy violation")
)

// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import "golang.org/x/term"

// IsStderrTerminal reports whether standard error is attached to a
// terminal, for "--color auto" resolution (spec.md §6).
func IsStderrTerminal() bool {
	return term.IsTerminal(2)
}

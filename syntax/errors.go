// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package syntax

import "fmt"

// SyntaxError reports a parse failure at a specific byte offset in the
// source. It is the only error type Parse returns.
type SyntaxError struct {
	// Offset is the byte offset into the source at which the error was
	// detected.
	Offset int

	// Expected describes what the parser was looking for.
	Expected string

	// Found is the text of the token or character that didn't match.
	Found string
}

func (err *SyntaxError) Error() string {
	if err.Found == "" {
		return fmt.Sprintf("syntax error at offset %d: expected %s, got end of input", err.Offset, err.Expected)
	}
	return fmt.Sprintf("syntax error at offset %d: expected %s, got %q", err.Offset, err.Expected, err.Found)
}

// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestNewErrorNoParameters(t *testing.T) {
	err := NewError("org.example.Failed")

	if got := err.ErrorCode(); got != "org.example.Failed" {
		t.Fatalf("ErrorCode() = %q, want %q", got, "org.example.Failed")
	}

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatalf("Marshal: %v", merr)
	}
	if string(data) != "{}" {
		t.Fatalf("Marshal() = %s, want {}", data)
	}
}

func TestNewErrorWithParameters(t *testing.T) {
	err := NewError("org.example.Failed", "reason", "timeout", "attempts", 3)

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatalf("Marshal: %v", merr)
	}

	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if params["reason"] != "timeout" {
		t.Fatalf("params[reason] = %v, want timeout", params["reason"])
	}
	if params["attempts"] != float64(3) {
		t.Fatalf("params[attempts] = %v, want 3", params["attempts"])
	}
}

func TestNewErrorOddArgsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an odd key-value list")
		}
	}()
	NewError("org.example.Failed", "reason")
}

func TestIsPeerGone(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"epipe", syscall.EPIPE, true},
		{"econnreset", syscall.ECONNRESET, true},
		{"eagain", syscall.EAGAIN, false},
		{"wrapped epipe", fmt.Errorf("write: %w", syscall.EPIPE), true},
		{"unrelated", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isPeerGone(tc.err); got != tc.want {
				t.Fatalf("isPeerGone(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", External(QuotaExceeded, errors.New("billing")))

	for _, test := range []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{Configuration("octaves", "%d", 0), "configuration"},
		{ErrNoTerrain, "validation"},
		{wrapped, "external"},
		{context.Canceled, "internal"},
	} {
		if kind := Kind(test.err); kind != test.kind {
			t.Errorf("%v: expected %q got %q", test.err, test.kind, kind)
		}
	}

	if reason, ok := ReasonOf(wrapped); !ok || reason != QuotaExceeded {
		t.Errorf("expected quotaExceeded got %v", reason)
	}
	if _, ok := ReasonOf(ErrNoTerrain); ok {
		t.Error("validation error has no reason")
	}
}

func TestExternal_Unwrap(t *testing.T) {
	err := External(Network, context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("cause not unwrapped")
	}
	if err.Error() != "external service: network: context deadline exceeded" {
		t.Errorf("unexpected message %q", err)
	}
	if (&ExternalServiceError{Reason: PolicyRejected}).Error() != "external service: policyRejected" {
		t.Error("unexpected message without cause")
	}
}

func TestParseReason(t *testing.T) {
	for _, reason := range []Reason{Network, PolicyRejected, QuotaExceeded, MalformedResponse} {
		if parsed, ok := ParseReason(reason.String()); !ok || parsed != reason {
			t.Errorf("%s did not round trip", reason)
		}
	}
	if _, ok := ParseReason("unknown"); ok {
		t.Error("expected unknown reason to fail")
	}
}

// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package fs

import (
	"testing"
)

func TestContentType(t *testing.T) {
	for key, expected := range map[string]string{
		"generations/a/1/guide.png": "image/png",
		"generations/a/1/paint.bin": "application/octet-stream",
		"status.json":               "application/json",
	} {
		if actual := ContentType(key); actual == nil || *actual != expected {
			t.Errorf("%s: expected %s got %v", key, expected, actual)
		}
	}

	if ContentType("readme") != nil {
		t.Error("expected nil for unknown extension")
	}
}

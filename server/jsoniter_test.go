// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/paint"
	"github.com/SoftbearStudios/cartograph/server/terrain"
)

func TestJsonIter(t *testing.T) {
	reason := failure.PolicyRejected
	testFailure := Message{Data: Failure{
		Operation: "generate",
		Kind:      "external",
		Reason:    &reason,
		Message:   "no",
	}}

	const testFailureString = `{"data":{"operation":"generate","kind":"external","reason":"policyRejected","message":"no"},"type":"failure"}`

	buf, err := json.Marshal(testFailure)
	if err != nil {
		t.Error("error marshaling:", err.Error())
		return
	}
	if !bytes.Equal(buf, []byte(testFailureString)) {
		t.Error("different output:\none:", testFailureString, "\ntwo:", string(buf))
	}

	buf, err = json.Marshal(Message{Data: Failure{Operation: "stroke", Kind: "validation", Message: "no points"}})
	if err != nil {
		t.Error("error marshaling:", err.Error())
		return
	}
	if strings.Contains(string(buf), "reason") {
		t.Error("unexpected reason:", string(buf))
	}

	var decoded Failure
	err = json.Unmarshal([]byte(`{"reason":"quotaExceeded"}`), &decoded)
	if err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}
	if decoded.Reason == nil || *decoded.Reason != failure.QuotaExceeded {
		t.Error("different reason:", decoded.Reason)
	}
}

func TestJsonIter_Inbound(t *testing.T) {
	const strokeString = `{"type":"stroke","data":{"points":[[1,2],{"x":3.5,"y":4}],"size":5,"color":"#ff0000","erase":true}}`

	var message Message
	if err := json.Unmarshal([]byte(strokeString), &message); err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}

	stroke, ok := message.Data.(Stroke)
	if !ok {
		t.Errorf("expected Stroke got %T", message.Data)
		return
	}
	expected := paint.Stroke{
		Points: []paint.Point{{X: 1, Y: 2}, {X: 3.5, Y: 4}},
		Size:   5,
		Color:  terrain.RGB(255, 0, 0),
		Erase:  true,
	}
	if len(stroke.Points) != 2 || stroke.Points[0] != expected.Points[0] || stroke.Points[1] != expected.Points[1] ||
		stroke.Size != expected.Size || stroke.Color != expected.Color || !stroke.Erase {
		t.Errorf("different stroke:\nexpected: %+v\ngot: %+v", expected, stroke.Stroke)
	}

	// Type after data
	message = Message{}
	if err := json.Unmarshal([]byte(`{"data":{"prompt":"ink"},"type":"generate"}`), &message); err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}
	if generate, ok := message.Data.(Generate); !ok || generate.Prompt != "ink" {
		t.Errorf("expected Generate got %#v", message.Data)
	}

	message = Message{}
	if err := json.Unmarshal([]byte(`{"type":"mosaic","data":{"prompt":"ink","corner":"bottomLeft","size":2048}}`), &message); err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}
	if m, ok := message.Data.(Mosaic); !ok || m != (Mosaic{Prompt: "ink", Corner: "bottomLeft", Size: 2048}) {
		t.Errorf("expected Mosaic got %#v", message.Data)
	}

	// No data
	message = Message{}
	if err := json.Unmarshal([]byte(`{"type":"clearPaint"}`), &message); err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}
	if _, ok := message.Data.(ClearPaint); !ok {
		t.Errorf("expected ClearPaint got %#v", message.Data)
	}

	message = Message{}
	if err := json.Unmarshal([]byte(`{"type":"failure","data":{}}`), &message); err != nil {
		t.Error("error unmarshaling:", err.Error())
		return
	}
	if invalid, ok := message.Data.(InvalidInbound); !ok || invalid.messageType != "failure" {
		t.Errorf("expected InvalidInbound got %#v", message.Data)
	}

	if err := json.Unmarshal([]byte(`{"data":{}}`), &message); err == nil {
		t.Error("expected error for missing type")
	}

	var point paint.Point
	if err := json.Unmarshal([]byte(`[1,2,3]`), &point); err == nil {
		t.Error("expected error for 3 coordinates")
	}
}

func TestJsonIter_Thumbnail(t *testing.T) {
	values := make([]float64, 512*256)
	field, _ := terrain.NewField(512, 256, values)
	c, _ := terrain.Classify(field, terrain.DefaultBands())
	g, _ := guide.Build(c, nil)

	buf, err := json.Marshal(Preview{URL: "/x", Thumbnail: Thumbnail{Image: g}})
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		URL       string `json:"url"`
		Thumbnail string `json:"thumbnail"`
	}
	if err = json.Unmarshal(buf, &decoded); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(decoded.Thumbnail, thumbnailPrefix) {
		t.Fatal("missing data URL prefix:", decoded.Thumbnail[:32])
	}
	raw, err := base64.StdEncoding.DecodeString(decoded.Thumbnail[len(thumbnailPrefix):])
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != ThumbnailSize || b.Dy() != ThumbnailSize/2 {
		t.Errorf("unexpected thumbnail size %v", b)
	}

	buf, _ = json.Marshal(Preview{URL: "/x"})
	if strings.Contains(string(buf), "thumbnail") {
		t.Error("empty thumbnail marshaled:", string(buf))
	}
}

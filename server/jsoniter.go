// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"reflect"
	"sync"
	"unsafe"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/paint"
	jsoniter "github.com/json-iterator/go"
)

// Make sure functions get run first
var json = func() jsoniter.API {
	neverEmpty := func(pointer unsafe.Pointer) bool { return false }

	// Encoders
	jsoniter.RegisterTypeEncoderFunc(reflect.TypeOf(Message{}).String(), encodeMessage, neverEmpty)
	jsoniter.RegisterTypeEncoderFunc(reflect.TypeOf(Thumbnail{}).String(), encodeThumbnail, emptyThumbnail)
	jsoniter.RegisterTypeEncoderFunc(reflect.TypeOf(failure.Reason(0)).String(), encodeReason, neverEmpty)

	// Decoders
	jsoniter.RegisterTypeDecoderFunc(reflect.TypeOf(Message{}).String(), decodeMessage)
	jsoniter.RegisterTypeDecoderFunc(reflect.TypeOf(paint.Point{}).String(), decodePoint)
	jsoniter.RegisterTypeDecoderFunc(reflect.TypeOf(failure.Reason(0)).String(), decodeReason)

	return jsoniter.Config{
		IndentionStep:                 0,
		MarshalFloatWith6Digits:       true,
		EscapeHTML:                    false,
		SortMapKeys:                   true,
		UseNumber:                     false,
		DisallowUnknownFields:         false,
		TagKey:                        "json",
		OnlyTaggedField:               false,
		ValidateJsonRawMessage:        false,
		ObjectFieldMustBeSimpleString: true,
		CaseSensitive:                 true,
	}.Froze()
}()

func encodeMessage(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	message := (*Message)(ptr)
	stream.WriteVal(message.messageJSON())
}

const thumbnailPrefix = "data:image/png;base64,"

// Encoded thumbnails are tens of kilobytes
var thumbnailPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Encodes Thumbnail as a quoted PNG data URL
func encodeThumbnail(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	thumbnail := (*Thumbnail)(ptr)

	buf := thumbnailPool.Get().(*bytes.Buffer)
	defer thumbnailPool.Put(buf)
	buf.Reset()

	if err := png.Encode(buf, thumbnail.Image.Thumbnail(thumbnail.size())); err != nil {
		stream.Error = err
		return
	}

	b := append(append(stream.Buffer(), '"'), thumbnailPrefix...)
	n := base64.StdEncoding.EncodedLen(buf.Len())
	if cap(b)-len(b) < n+1 {
		grown := make([]byte, len(b), len(b)+n+1)
		copy(grown, b)
		b = grown
	}
	base64.StdEncoding.Encode(b[len(b):len(b)+n], buf.Bytes())
	stream.SetBuffer(append(b[:len(b)+n], '"'))
}

func emptyThumbnail(ptr unsafe.Pointer) bool {
	return (*Thumbnail)(ptr).Image == nil
}

func encodeReason(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	stream.WriteString((*(*failure.Reason)(ptr)).String())
}

func decodeReason(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	name := iter.ReadString()
	reason, ok := failure.ParseReason(name)
	if !ok {
		iter.ReportError("decode reason", "unknown reason "+name)
		return
	}
	*(*failure.Reason)(ptr) = reason
}

// Points are [x, y] on the wire, but {"x": x, "y": y} is also accepted
func decodePoint(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	point := (*paint.Point)(ptr)

	switch iter.WhatIsNext() {
	case jsoniter.ArrayValue:
		i := 0
		for iter.ReadArray() {
			switch i {
			case 0:
				point.X = iter.ReadFloat32()
			case 1:
				point.Y = iter.ReadFloat32()
			default:
				iter.Skip()
			}
			i++
		}
		if i != 2 {
			iter.ReportError("decode point", "expected 2 coordinates")
		}
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(i *jsoniter.Iterator, field string) bool {
			switch field {
			case "x":
				point.X = i.ReadFloat32()
			case "y":
				point.Y = i.ReadFloat32()
			default:
				i.Skip()
			}
			return true
		})
	default:
		iter.ReportError("decode point", "expected array or object")
	}
}

// Buffers large enough to hold most inbounds
var decodeMessagePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 0, 256)
		return &buf
	},
}

func decodeMessage(ptr unsafe.Pointer, topLevelIter *jsoniter.Iterator) {
	bufPtr := decodeMessagePool.Get().(*[]byte)

	// Read bytes so can read twice
	messageBytes := topLevelIter.SkipAndAppendBytes(*bufPtr)

	// Pool iterator with previous pool
	pool := topLevelIter.Pool()
	iter := pool.BorrowIterator(messageBytes)
	defer pool.ReturnIterator(iter)

	// Interface of *inbound
	var in interface{}

	// Doesn't have to read twice if type is first field
	// If type is found c is > 0
	for c := 0; c < 3; c++ {
		iter.ResetBytes(messageBytes)
		iter.ReadObjectCB(func(i *jsoniter.Iterator, field string) bool {
			if field == "type" {
				// Not already read
				if in == nil {
					messageTypeBytes := i.ReadStringAsSlice()
					inboundType, ok := inboundMessageTypes[messageType(messageTypeBytes)]
					if !ok {
						inboundType = reflect.TypeOf(InvalidInbound{})
					}
					in = reflect.New(inboundType).Interface()

					if !ok {
						in.(*InvalidInbound).messageType = messageType(messageTypeBytes)
					}

					c++
				} else {
					i.Skip()
				}
				return true
			} else if field == "data" {
				// Found type
				if c > 0 {
					i.ReadVal(in)
					c++
					return false // Finished
				} else {
					i.Skip()
				}
			} else {
				i.Skip()
			}
			return true
		})

		if err := iter.Error; err != nil {
			topLevelIter.Error = err
			return
		}

		// No message type
		if c == 0 {
			topLevelIter.Error = errors.New("no inbound message type")
			return
		}
	}

	// Pool messageBytes
	*bufPtr = messageBytes[:0]
	decodeMessagePool.Put(bufPtr)

	// Store data
	message := (*Message)(ptr)
	message.Data = reflect.Indirect(reflect.ValueOf(in)).Interface()
}

// Package jsonstream turns a JSON document into a push stream of
// [reader.Event]s so large listings never have to be held in memory.
package jsonstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	rserrs "github.com/jdholdren/readersync/internal/errors"
	"github.com/jdholdren/readersync/internal/reader"
)

// One open container on the way down the document.
type frame struct {
	object    bool
	expectKey bool
	key       string // the key currently being read, objects only
	parentKey string // the key this container itself sits under
}

// Drive decodes a single JSON document from r and feeds it to h.
//
// The handler may stop early by returning false, in which case the rest of
// the document is not read and End is not called. Syntax problems come back
// as KindMalformed, read failures as KindTransport.
func Drive(ctx context.Context, r io.Reader, h reader.StreamHandler) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := h.Begin(ctx); err != nil {
		return err
	}

	var (
		stack   []frame
		started bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if started && len(stack) == 0 {
			break
		}

		tok, err := dec.Token()
		if err == io.EOF {
			if !started || len(stack) > 0 {
				return rserrs.E(rserrs.KindMalformed, fmt.Errorf("error decoding response: %w", io.ErrUnexpectedEOF))
			}
			break
		}
		if err != nil {
			return classify(err)
		}
		started = true

		// Object keys only move the cursor.
		var top *frame
		if len(stack) > 0 {
			top = &stack[len(stack)-1]
		}
		if top != nil && top.object && top.expectKey {
			if key, ok := tok.(string); ok {
				top.key = key
				top.expectKey = false
				continue
			}
		}

		key := ""
		if top != nil && top.object {
			key = top.key
		}

		var ev reader.Event
		switch tok := tok.(type) {
		case json.Delim:
			switch tok {
			case '{':
				ev = reader.Event{Kind: reader.EventStartObject, Key: key}
				stack = append(stack, frame{object: true, expectKey: true, parentKey: key})
			case '[':
				ev = reader.Event{Kind: reader.EventStartArray, Key: key}
				stack = append(stack, frame{parentKey: key})
			case '}', ']':
				closed := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				kind := reader.EventEndArray
				if tok == '}' {
					kind = reader.EventEndObject
				}
				ev = reader.Event{Kind: kind, Key: closed.parentKey}
				if len(stack) > 0 && stack[len(stack)-1].object {
					stack[len(stack)-1].expectKey = true
				}
			}
		default:
			ev = reader.Event{Kind: reader.EventValue, Key: key, Value: tok}
			if top != nil && top.object {
				top.expectKey = true
			}
		}

		cont, err := h.Handle(ctx, ev)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}

	return h.End(ctx)
}

func classify(err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return rserrs.E(rserrs.KindMalformed, fmt.Errorf("error decoding response: %w", err))
	}
	return rserrs.E(rserrs.KindTransport, fmt.Errorf("error reading response: %w", err))
}

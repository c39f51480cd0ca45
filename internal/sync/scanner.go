package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jdholdren/readersync/internal/reader"
)

type scanState int

const (
	stateIdle     scanState = iota // outside the array holding records
	stateInTarget                  // inside the array, between records
	stateInRecord                  // inside one record object
	stateDone                      // stopped for good, every later event is refused
)

// record is the flat scalar fields of one object; nested containers are skipped.
type record map[string]any

// scanner picks record objects out of a listing and hands each one to
// onRecord when its closing brace arrives.
//
// With an empty target the records are the elements of the root array,
// otherwise the elements of the array sitting under the target key.
type scanner struct {
	target   string
	onRecord func(context.Context, record) (bool, error)

	state scanState
	outer int // containers open outside the target array
	depth int // containers open below the current record or target element
	rec   record
}

func (s *scanner) reset() {
	s.state = stateIdle
	s.outer = 0
	s.depth = 0
	s.rec = nil
}

func (s *scanner) done() bool {
	return s.state == stateDone
}

func (s *scanner) Handle(ctx context.Context, ev reader.Event) (bool, error) {
	switch s.state {
	case stateDone:
		return false, nil

	case stateIdle:
		switch ev.Kind {
		case reader.EventStartArray:
			if s.isTarget(ev) {
				s.state = stateInTarget
				s.depth = 0
			}
			s.outer++
		case reader.EventStartObject:
			s.outer++
		case reader.EventEndArray, reader.EventEndObject:
			s.outer--
		}

	case stateInTarget:
		switch ev.Kind {
		case reader.EventStartObject:
			if s.depth == 0 {
				s.state = stateInRecord
				s.rec = record{}
				return true, nil
			}
			s.depth++
		case reader.EventStartArray:
			s.depth++
		case reader.EventEndObject:
			s.depth--
		case reader.EventEndArray:
			if s.depth == 0 {
				s.state = stateIdle
				s.outer--
				return true, nil
			}
			s.depth--
		}

	case stateInRecord:
		switch ev.Kind {
		case reader.EventStartObject, reader.EventStartArray:
			s.depth++
		case reader.EventEndArray:
			s.depth--
		case reader.EventEndObject:
			if s.depth > 0 {
				s.depth--
				return true, nil
			}

			rec := s.rec
			s.rec = nil
			s.state = stateInTarget
			cont, err := s.onRecord(ctx, rec)
			if err != nil {
				return false, err
			}
			if !cont {
				s.state = stateDone
				return false, nil
			}
		case reader.EventValue:
			if s.depth == 0 {
				s.rec[ev.Key] = ev.Value
			}
		}
	}

	return true, nil
}

func (s *scanner) isTarget(ev reader.Event) bool {
	if s.target == "" {
		return s.outer == 0
	}
	return ev.Key == s.target
}

// The reader is loose about numbers: ids sometimes arrive as strings.

func (r record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return int64(f)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func (r record) Int(key string) int {
	return int(r.Int64(key))
}

func (r record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

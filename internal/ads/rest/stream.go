package rest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dvloznov/ads-extractor/internal/ads"
	"google.golang.org/api/iterator"
)

type streamBatch struct {
	Results   []ads.Record `json:"results"`
	FieldMask string       `json:"fieldMask"`
	Error     *apiError    `json:"error"`
}

// stream decodes the searchStream response, a JSON array of result batches,
// one batch at a time.
type stream struct {
	body      io.ReadCloser
	dec       *json.Decoder
	fieldMask []string
	buf       []ads.Record
	done      bool
}

func newStream(body io.ReadCloser) (*stream, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("newStream: %w", readError(err))
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("newStream: unexpected stream start %v", tok)
	}
	return &stream{body: body, dec: dec}, nil
}

func (s *stream) Next() (ads.Record, error) {
	for len(s.buf) == 0 {
		if s.done || !s.dec.More() {
			s.done = true
			return nil, iterator.Done
		}
		var batch streamBatch
		if err := s.dec.Decode(&batch); err != nil {
			s.done = true
			return nil, fmt.Errorf("stream: %w", readError(err))
		}
		if batch.Error != nil {
			s.done = true
			return nil, batch.Error.toPlatformError(0)
		}
		if s.fieldMask == nil {
			s.fieldMask = splitFieldMask(batch.FieldMask)
		}
		s.buf = batch.Results
	}
	rec := s.buf[0]
	s.buf = s.buf[1:]
	return rec, nil
}

func (s *stream) FieldMask() []string { return s.fieldMask }

func (s *stream) Close() error { return s.body.Close() }

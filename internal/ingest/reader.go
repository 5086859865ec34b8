// Package ingest reads extracted signals from files and feeds them to the
// lifecycle engine at a bounded rate.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/studio-suggest/internal/model"
)

// Format identifies a signal file encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// maxLine bounds a single JSONL record.
const maxLine = 4 << 20

// DetectFormat picks a format from a file extension. Unknown extensions
// are read as JSONL.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSONL
	}
}

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSONL, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", eris.Errorf("ingest: unknown format %q", s)
	}
}

// Stream decodes signals from r and sends them on the returned channel.
// Decoding stops at the first malformed record. Both channels are closed
// when processing completes.
func Stream(ctx context.Context, r io.Reader, format Format) (<-chan model.Signal, <-chan error) {
	outCh := make(chan model.Signal, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		send := func(sig model.Signal) bool {
			select {
			case outCh <- sig:
				return true
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return false
			}
		}

		var err error
		switch format {
		case FormatJSON:
			err = streamJSON(ctx, r, send)
		case FormatYAML:
			err = streamYAML(r, send)
		default:
			err = streamJSONL(ctx, r, send)
		}
		if err != nil {
			errCh <- err
		}
	}()

	return outCh, errCh
}

func streamJSONL(ctx context.Context, r io.Reader, send func(model.Signal) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "ingest: context cancelled")
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var sig model.Signal
		if err := json.Unmarshal(raw, &sig); err != nil {
			return eris.Wrapf(err, "ingest: decode line %d", line)
		}
		if !send(sig) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "ingest: scan")
	}
	return nil
}

// streamJSON accepts either a single object or an array of objects.
func streamJSON(ctx context.Context, r io.Reader, send func(model.Signal) bool) error {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "ingest: read")
	}

	decoder := json.NewDecoder(br)
	if first != '[' {
		var sig model.Signal
		if err := decoder.Decode(&sig); err != nil {
			return eris.Wrap(err, "ingest: decode object")
		}
		send(sig)
		return nil
	}

	if _, err := decoder.Token(); err != nil {
		return eris.Wrap(err, "ingest: read opening token")
	}
	for i := 0; decoder.More(); i++ {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "ingest: context cancelled")
		}
		var sig model.Signal
		if err := decoder.Decode(&sig); err != nil {
			return eris.Wrapf(err, "ingest: decode element %d", i)
		}
		if !send(sig) {
			return nil
		}
	}
	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return eris.Wrap(err, "ingest: read closing token")
	}
	return nil
}

// streamYAML reads one or more documents, each a signal or a list of
// signals.
func streamYAML(r io.Reader, send func(model.Signal) bool) error {
	decoder := yaml.NewDecoder(r)
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := decoder.Decode(&node)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "ingest: decode yaml document %d", doc)
		}
		if len(node.Content) == 0 {
			continue
		}

		var sigs []model.Signal
		if node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(&sigs)
		} else {
			var sig model.Signal
			err = node.Decode(&sig)
			sigs = []model.Signal{sig}
		}
		if err != nil {
			return eris.Wrapf(err, "ingest: decode yaml document %d", doc)
		}
		for _, sig := range sigs {
			if !send(sig) {
				return nil
			}
		}
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

// ReadAll drains Stream into a slice.
func ReadAll(ctx context.Context, r io.Reader, format Format) ([]model.Signal, error) {
	sigCh, errCh := Stream(ctx, r, format)
	var out []model.Signal
	for sig := range sigCh {
		out = append(out, sig)
	}
	if err := <-errCh; err != nil {
		return out, err
	}
	return out, nil
}
